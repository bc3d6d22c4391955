package services

const (
	consultationsCollection = "consultations"
	messagesCollection      = "messages"
)
