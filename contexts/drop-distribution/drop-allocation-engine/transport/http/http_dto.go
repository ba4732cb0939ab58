package httptransport

type ClaimDropRequest struct {
	DisplayName string `json:"display_name"`
	Username    string `json:"username,omitempty"`
}

type PayloadFieldDTO struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

type CategoryCountDTO struct {
	Category string `json:"category"`
	Count    int    `json:"count"`
}

type AvailableSummaryDTO struct {
	Categories []CategoryCountDTO `json:"categories"`
	Total      int                `json:"total"`
}

type DropResultResponse struct {
	Outcome           string              `json:"outcome"`
	ItemID            string              `json:"item_id,omitempty"`
	Category          string              `json:"category,omitempty"`
	Fields            []PayloadFieldDTO   `json:"fields,omitempty"`
	AllocationEventID string              `json:"allocation_event_id,omitempty"`
	AllocationDay     string              `json:"allocation_day,omitempty"`
	Available         AvailableSummaryDTO `json:"available"`
}

type AvailableDropsResponse struct {
	Available AvailableSummaryDTO `json:"available"`
}

type RequesterResponse struct {
	RequesterID      string `json:"requester_id"`
	Username         string `json:"username,omitempty"`
	DisplayName      string `json:"display_name"`
	Verified         bool   `json:"verified"`
	TotalAllocations int    `json:"total_allocations"`
	CreatedAt        string `json:"created_at"`
	LastSeenAt       string `json:"last_seen_at"`
}

type AllocationDTO struct {
	AllocationEventID string `json:"allocation_event_id"`
	ItemID            string `json:"item_id"`
	Action            string `json:"action"`
	AllocationDay     string `json:"allocation_day"`
	OccurredAt        string `json:"occurred_at"`
}

type ListAllocationsResponse struct {
	RequesterID string          `json:"requester_id"`
	Items       []AllocationDTO `json:"items"`
}

type GatewayCommandRequest struct {
	RequesterID string `json:"requester_id"`
	Username    string `json:"username,omitempty"`
	FirstName   string `json:"first_name,omitempty"`
	LastName    string `json:"last_name,omitempty"`
	Text        string `json:"text"`
}

type GatewayCommandResponse struct {
	Reply     string `json:"reply"`
	ParseMode string `json:"parse_mode"`
	Outcome   string `json:"outcome,omitempty"`
}

type HealthResponse struct {
	Status string `json:"status"`
}

type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
