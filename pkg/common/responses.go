package common

import "net/http"

type SuccessResponse struct {
	Status  int         `json:"status"`
	Success bool        `json:"success"`
	Message string      `json:"message"`
	Data    interface{} `json:"data"`
}

type ErrorResponse struct {
	Status  int         `json:"status"`
	Message string      `json:"message"`
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
}

func NewSuccessResponse(data interface{}, message string) SuccessResponse {
	return SuccessResponse{
		Status:  http.StatusOK,
		Success: true,
		Message: message,
		Data:    data,
	}
}

func NewCreatedResponse(data interface{}, message string) SuccessResponse {
	res := NewSuccessResponse(data, message)
	res.Status = http.StatusCreated
	return res
}

func NewErrorResponse(message string, data interface{}, status int) ErrorResponse {
	return ErrorResponse{
		Status:  status,
		Success: false,
		Message: message,
		Data:    data,
	}
}

// ErrorResponseFrom builds the client-facing response for a service error.
func ErrorResponseFrom(err error) ErrorResponse {
	status := StatusCode(err)
	var field interface{}
	if v, ok := err.(*ValidationError); ok && v.Field != "" {
		field = map[string]string{"field": v.Field}
	}
	return NewErrorResponse(PublicMessage(err), field, status)
}
