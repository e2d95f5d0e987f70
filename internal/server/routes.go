package server

func (s *Server) setupRoutes() {
	s.echo.GET("/", s.HealthHandler)

	api := s.echo.Group("/api")
	api.GET("/public-settings", s.publicSettings)
	api.POST("/register", s.register)
	api.POST("/login", s.login)
	api.POST("/logout", s.logout)
	api.POST("/verify-email", s.verifyEmail)
	api.POST("/send-verification-code", s.sendVerificationCode)

	api.GET("/pending-users", s.pendingUsers)
	api.POST("/approve-user", s.userAction("user approved", s.approveUser))
	api.POST("/reject-user", s.userAction("user rejected", s.rejectUser))
	api.GET("/users", s.users)
	api.POST("/add-user", s.addUser)
	api.POST("/delete-user", s.userAction("user deleted", s.deleteUser))
	api.GET("/settings", s.settings)
	api.POST("/update-settings", s.updateSettings)

	api.GET("/messages", s.messages)
	api.POST("/send-message", s.sendMessage)
	api.POST("/recall-message", s.recallMessage)

	api.POST("/set-deputy-admin", s.setDeputyAdmin)
	api.POST("/mute-user", s.muteUser)
	api.POST("/unmute-user", s.userAction("user unmuted", s.unmuteUser))
	api.POST("/ban-user", s.userAction("user banned", s.banUser))

	api.GET("/current-user", s.currentUser)
	api.GET("/mention-checks", s.mentionChecks)
	api.POST("/mark-mentions-checked", s.markMentionsChecked)
	api.POST("/delete-account", s.deleteAccount)
	api.POST("/update-display-name", s.updateDisplayName)
	api.POST("/update-user-display-name", s.updateUserDisplayName)

	api.GET("/ws", s.WebSocketHandler)
}
