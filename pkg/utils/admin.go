package utils

import (
	"webrecorder/backend/internal/models"
	"webrecorder/backend/pkg/database"
)

// IsAdmin checks if the user with given ID is an admin user
func IsAdmin(userID uint) bool {
	var user models.User
	err := database.DB.First(&user, userID).Error
	if err != nil {
		return false
	}
	return user.Username == "admin"
}

// HasPermissionOnRecording checks if user has permission on a saved
// recording (owner or admin)
func HasPermissionOnRecording(userID uint, recordingID uint) bool {
	if IsAdmin(userID) {
		return true
	}

	var recording models.Recording
	err := database.DB.Where("id = ? AND user_id = ? AND status = ?", recordingID, userID, 1).First(&recording).Error
	return err == nil
}
