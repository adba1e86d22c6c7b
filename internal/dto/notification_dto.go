package dto

type BroadcastRequest struct {
	Title   string `json:"title" validate:"required,max=200"`
	Message string `json:"message" validate:"required,max=2000"`
}

type TriggerEventRequest struct {
	Type    string                 `json:"type" validate:"required,max=50"`
	Payload map[string]interface{} `json:"payload"`
}

type ListNotificationsQuery struct {
	Limit  int `query:"limit" validate:"min=1,max=100"`
	Offset int `query:"offset" validate:"min=0"`
}
