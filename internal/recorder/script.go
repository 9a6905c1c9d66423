package recorder

// captureScript is injected into every page the recorded browser opens.
// It observes user interactions in the capture phase, snapshots the
// target element (element references are not durable across the wire)
// and buffers raw signals until the poll loop drains them. All
// normalization, debouncing and commit decisions happen on the Go side.
const captureScript = `
(function() {
	if (window.__webRecorder) return;

	let elementKeys = new WeakMap();
	let nextKey = 1;

	function keyFor(el) {
		if (!elementKeys.has(el)) {
			elementKeys.set(el, 'e' + (nextKey++));
		}
		return elementKeys.get(el);
	}

	function snapshot(el) {
		if (!el || el.nodeType !== Node.ELEMENT_NODE) return null;
		let sameTagCount = 0, tagIndex = 0;
		try {
			const sameTag = el.ownerDocument.getElementsByTagName(el.tagName);
			sameTagCount = sameTag.length;
			for (let i = 0; i < sameTag.length; i++) {
				if (sameTag[i] === el) { tagIndex = i + 1; break; }
			}
		} catch (e) {}
		// The real value of a password field never leaves the page.
		let value = (el.value !== undefined && el.value !== null) ? String(el.value) : '';
		if (el.type === 'password' && value) value = '********';
		return {
			tag_name: el.tagName || '',
			id: el.id || '',
			class_attr: (typeof el.className === 'string') ? el.className : '',
			text: (el.textContent || '').trim().substring(0, 100),
			name: el.getAttribute ? (el.getAttribute('name') || '') : '',
			has_name: el.hasAttribute ? el.hasAttribute('name') : false,
			same_tag_count: sameTagCount,
			tag_index: tagIndex,
			key: keyFor(el),
			type: el.type || '',
			value: value
		};
	}

	window.__webRecorder = {
		buffer: [],
		recording: true,
		paused: false,

		push: function(signal) {
			if (!this.recording || this.paused) return;
			signal.time = Date.now();
			this.buffer.push(signal);
			if (this.buffer.length > 500) this.buffer.shift();
		},

		drain: function() {
			const out = this.buffer;
			this.buffer = [];
			return out;
		},

		setState: function(recording, paused) {
			this.recording = recording;
			this.paused = paused;
			if (!recording) this.buffer = [];
		}
	};

	function maskNotice(doc) {
		try {
			const el = doc.createElement('div');
			el.textContent = 'Password captured as masked value';
			el.style.cssText = 'position:fixed;top:16px;right:16px;z-index:2147483647;' +
				'background:#333;color:#fff;padding:8px 12px;border-radius:4px;' +
				'font:13px sans-serif;opacity:0.9;pointer-events:none;';
			(doc.body || doc.documentElement).appendChild(el);
			setTimeout(function() { el.remove(); }, 2000);
		} catch (e) {}
	}

	function framePathOf(doc) {
		// Outermost to innermost names of the iframes containing doc.
		const path = [];
		try {
			let win = doc.defaultView;
			while (win && win !== win.parent) {
				const fe = win.frameElement;
				if (!fe) break;
				path.unshift(fe.name || fe.id || (fe.src || '').split('/').pop() || 'iframe');
				win = win.parent;
			}
		} catch (e) { /* cross-origin boundary */ }
		return path;
	}

	function instrument(doc, iframeEl, iframeSrc) {
		const inFrame = !!iframeEl;
		const framePath = inFrame ? framePathOf(doc) : [];

		doc.addEventListener('click', function(ev) {
			if (!ev.isTrusted) return;
			const base = {
				element: snapshot(ev.target),
				offset_x: Math.round(ev.offsetX || 0),
				offset_y: Math.round(ev.offsetY || 0),
				page_x: Math.round(ev.pageX || 0),
				page_y: Math.round(ev.pageY || 0)
			};
			if (inFrame) {
				base.kind = 'iframe_click';
				base.frame_path = framePath;
				base.iframe_src = iframeSrc;
				base.iframe_element = snapshot(iframeEl);
			} else {
				base.kind = 'click';
			}
			window.__webRecorder.push(base);
		}, true);

		doc.addEventListener('contextmenu', function(ev) {
			if (!ev.isTrusted) return;
			window.__webRecorder.push({ kind: 'contextmenu', element: snapshot(ev.target) });
		}, true);

		doc.addEventListener('focusout', function(ev) {
			if (!ev.isTrusted || !ev.target.tagName) return;
			const tag = ev.target.tagName.toLowerCase();
			if (tag === 'input' || tag === 'textarea') {
				if (ev.target.type === 'file' || ev.target.type === 'checkbox' || ev.target.type === 'radio') return;
				if (ev.target.type === 'password' && ev.target.value) maskNotice(doc);
				window.__webRecorder.push({ kind: 'input_blur', element: snapshot(ev.target) });
			}
		}, true);

		doc.addEventListener('keydown', function(ev) {
			if (!ev.isTrusted) return;
			const tag = ev.target.tagName ? ev.target.tagName.toLowerCase() : '';
			if (ev.key === 'Enter' && (tag === 'input' || tag === 'textarea')) {
				if (ev.target.type === 'password' && ev.target.value) maskNotice(doc);
				window.__webRecorder.push({ kind: 'input_enter', element: snapshot(ev.target) });
			}
			window.__webRecorder.push({ kind: 'keydown', element: snapshot(ev.target), value: ev.key });
		}, true);

		doc.addEventListener('change', function(ev) {
			if (!ev.isTrusted || !ev.target.tagName) return;
			const tag = ev.target.tagName.toLowerCase();
			if (tag === 'select') {
				window.__webRecorder.push({ kind: 'select_change', element: snapshot(ev.target) });
			} else if (tag === 'input' && ev.target.type === 'file') {
				const names = [];
				const files = ev.target.files || [];
				for (let i = 0; i < files.length; i++) names.push(files[i].name);
				window.__webRecorder.push({ kind: 'file_change', element: snapshot(ev.target), filenames: names });
			}
		}, true);

		doc.addEventListener('dragstart', function(ev) {
			if (!ev.isTrusted) return;
			window.__webRecorder.push({ kind: 'dragstart', element: snapshot(ev.target) });
		}, true);

		doc.addEventListener('drop', function(ev) {
			if (!ev.isTrusted) return;
			window.__webRecorder.push({
				kind: 'drop',
				element: snapshot(ev.target),
				page_x: Math.round(ev.pageX || 0),
				page_y: Math.round(ev.pageY || 0)
			});
		}, true);

		doc.addEventListener('dragend', function(ev) {
			if (!ev.isTrusted) return;
			window.__webRecorder.push({
				kind: 'dragend',
				page_x: Math.round(ev.pageX || 0),
				page_y: Math.round(ev.pageY || 0),
				cancelled: ev.dataTransfer ? ev.dataTransfer.dropEffect === 'none' : true
			});
		}, true);

		doc.addEventListener('scroll', function(ev) {
			if (!ev.isTrusted) return;
			let t = ev.target;
			if (t === doc || t === doc.documentElement || t === doc.defaultView) {
				const de = doc.documentElement;
				window.__webRecorder.push({
					kind: 'scroll',
					element: { key: inFrame ? 'window:' + iframeSrc : 'window', tag_name: 'HTML' },
					scroll_top: Math.round(doc.defaultView.scrollY || de.scrollTop || 0),
					scroll_height: de.scrollHeight || 0,
					client_height: de.clientHeight || 0,
					is_window: true,
					iframe_src: iframeSrc || ''
				});
			} else if (t.nodeType === Node.ELEMENT_NODE) {
				window.__webRecorder.push({
					kind: 'scroll',
					element: snapshot(t),
					scroll_top: Math.round(t.scrollTop || 0),
					scroll_height: t.scrollHeight || 0,
					client_height: t.clientHeight || 0,
					is_window: false,
					iframe_src: iframeSrc || ''
				});
			}
		}, true);

		if (inFrame) {
			doc.addEventListener('focusin', function(ev) {
				if (!ev.isTrusted) return;
				window.__webRecorder.push({
					kind: 'frame_focus',
					frame_path: framePath,
					iframe_src: iframeSrc,
					iframe_element: snapshot(iframeEl)
				});
			}, true);
		} else {
			doc.addEventListener('focusin', function(ev) {
				if (!ev.isTrusted) return;
				window.__webRecorder.push({ kind: 'frame_focus_top' });
			}, true);
		}
	}

	function watchIframes(doc) {
		function hook(frame) {
			const src = frame.src || 'about:blank';
			let accessible = false;
			let innerDoc = null;
			try {
				innerDoc = frame.contentDocument;
				accessible = !!innerDoc;
			} catch (e) { accessible = false; }

			window.__webRecorder.push({
				kind: 'iframe_loaded',
				element: snapshot(frame),
				iframe_src: src,
				value: frame.name || '',
				accessible: accessible
			});

			if (accessible && innerDoc) {
				instrument(innerDoc, frame, src);
				watchIframes(innerDoc);
			}

			frame.addEventListener('error', function() {
				window.__webRecorder.push({
					kind: 'iframe_error',
					element: snapshot(frame),
					iframe_src: src,
					value: frame.name || ''
				});
			});
		}

		const frames = doc.getElementsByTagName('iframe');
		for (let i = 0; i < frames.length; i++) {
			const frame = frames[i];
			if (frame.contentDocument && frame.contentDocument.readyState === 'complete') {
				hook(frame);
			} else {
				frame.addEventListener('load', function() { hook(frame); });
			}
		}

		try {
			new MutationObserver(function(mutations) {
				mutations.forEach(function(m) {
					for (let i = 0; i < m.removedNodes.length; i++) {
						const node = m.removedNodes[i];
						if (node.tagName === 'IFRAME') {
							window.__webRecorder.push({
								kind: 'iframe_removed',
								element: snapshot(node),
								iframe_src: node.src || ''
							});
						} else if (node.nodeType === Node.ELEMENT_NODE && elementKeys.has(node)) {
							window.__webRecorder.push({
								kind: 'element_removed',
								value: elementKeys.get(node)
							});
						}
					}
					for (let i = 0; i < m.addedNodes.length; i++) {
						const node = m.addedNodes[i];
						if (node.tagName === 'IFRAME') {
							node.addEventListener('load', function() { hook(node); });
						}
					}
				});
			}).observe(doc.body || doc.documentElement, { childList: true, subtree: true });
		} catch (e) {}
	}

	instrument(document, null, '');
	if (document.readyState === 'complete' || document.readyState === 'interactive') {
		watchIframes(document);
	} else {
		document.addEventListener('DOMContentLoaded', function() { watchIframes(document); });
	}

	window.addEventListener('focus', function() {
		window.__webRecorder.push({ kind: 'window_focus' });
	});

	let navType = 'navigate';
	try {
		const nav = performance.getEntriesByType('navigation');
		if (nav.length > 0) navType = nav[0].type;
	} catch (e) {}
	window.__webRecorder.push({
		kind: 'pageload',
		url: location.href,
		title: document.title,
		value: navType
	});
})();
`

// dialogHookScript replaces the native dialog functions so the user's
// choice is observed at the point of invocation, before the blocking
// call returns to page code.
const dialogHookScript = `
(function() {
	if (window.__webRecorderDialogs) return;
	window.__webRecorderDialogs = true;

	const push = function(signal) {
		if (window.__webRecorder) window.__webRecorder.push(signal);
	};

	const origAlert = window.alert;
	window.alert = function(message) {
		const result = origAlert.call(window, message);
		push({ kind: 'dialog', dialog_kind: 'alert', message: String(message), action: 'accept' });
		return result;
	};

	const origConfirm = window.confirm;
	window.confirm = function(message) {
		const ok = origConfirm.call(window, message);
		push({ kind: 'dialog', dialog_kind: 'confirm', message: String(message), action: ok ? 'accept' : 'dismiss' });
		return ok;
	};

	const origPrompt = window.prompt;
	window.prompt = function(message, def) {
		const value = origPrompt.call(window, message, def);
		if (value === null) {
			push({ kind: 'dialog', dialog_kind: 'prompt', message: String(message), action: 'dismiss' });
		} else {
			push({ kind: 'dialog', dialog_kind: 'prompt', message: String(message), action: 'accept', dialog_value: value });
		}
		return value;
	};
})();
`
