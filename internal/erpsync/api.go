package erpsync

import "mes-result-backend/internal/store"

// ApiResponse models the top-level structure of the ERP's work order query response.
type ApiResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    struct {
		Page     int                       `json:"page"`
		PageSize int                       `json:"pageSize"`
		Total    int                       `json:"total"`
		Items    []store.UpstreamWorkOrder `json:"items"`
	} `json:"data"`
}
