package httpadapter

import (
	"context"
	"log/slog"
	"strings"
	"time"

	application "dropvault/contexts/drop-distribution/drop-allocation-engine/application"
	"dropvault/contexts/drop-distribution/drop-allocation-engine/application/commands"
	"dropvault/contexts/drop-distribution/drop-allocation-engine/application/queries"
	"dropvault/contexts/drop-distribution/drop-allocation-engine/domain/entities"
	domainerrors "dropvault/contexts/drop-distribution/drop-allocation-engine/domain/errors"
	"dropvault/contexts/drop-distribution/drop-allocation-engine/domain/services"
	chattransport "dropvault/contexts/drop-distribution/drop-allocation-engine/transport/chat"
	httptransport "dropvault/contexts/drop-distribution/drop-allocation-engine/transport/http"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("dropvault/drop-allocation-engine/http")

type Handler struct {
	RequestDrop        commands.RequestDropUseCase
	AvailableSummary   queries.GetAvailableSummaryUseCase
	GetRequester       queries.GetRequesterUseCase
	ListAllocations    queries.ListAllocationsUseCase
	Throttle           *Throttle
	VerificationMarker string
	Logger             *slog.Logger
}

// ClaimDropHandler godoc
// @Summary Request today's drop
// @Description Runs the drop workflow for the requester and returns the outcome with the available pool.
// @Tags drop-allocation-engine
// @Accept json
// @Produce json
// @Param X-Requester-Id header string true "Requester id"
// @Param request body httptransport.ClaimDropRequest true "Requester profile"
// @Success 200 {object} httptransport.DropResultResponse
// @Failure 400 {object} httptransport.ErrorResponse
// @Failure 401 {object} httptransport.ErrorResponse
// @Failure 500 {object} httptransport.DropResultResponse
// @Router /v1/drops/claim [post]
func (h Handler) ClaimDropHandler(
	ctx context.Context,
	requesterID string,
	req httptransport.ClaimDropRequest,
) (httptransport.DropResultResponse, error) {
	ctx, span := tracer.Start(ctx, "http.ClaimDrop",
		trace.WithAttributes(attribute.String("requester_id", requesterID)),
	)
	defer span.End()

	result, err := h.RequestDrop.Execute(ctx, commands.RequestDropCommand{
		RequesterID: requesterID,
		Username:    req.Username,
		DisplayName: req.DisplayName,
	})
	if err != nil {
		return httptransport.DropResultResponse{}, err
	}
	span.SetAttributes(attribute.String("outcome", string(result.Outcome)))
	return mapDropResult(result), nil
}

// AvailableDropsHandler godoc
// @Summary List available drops
// @Description Returns per-category counts of unallocated items and the total.
// @Tags drop-allocation-engine
// @Produce json
// @Success 200 {object} httptransport.AvailableDropsResponse
// @Failure 500 {object} httptransport.ErrorResponse
// @Router /v1/drops/available [get]
func (h Handler) AvailableDropsHandler(ctx context.Context) (httptransport.AvailableDropsResponse, error) {
	result, err := h.AvailableSummary.Execute(ctx)
	if err != nil {
		return httptransport.AvailableDropsResponse{}, err
	}
	return httptransport.AvailableDropsResponse{Available: mapSummary(result.Summary)}, nil
}

// GetRequesterHandler godoc
// @Summary Get requester ledger row
// @Tags drop-allocation-engine
// @Produce json
// @Param requester_id path string true "Requester id"
// @Success 200 {object} httptransport.RequesterResponse
// @Failure 404 {object} httptransport.ErrorResponse
// @Failure 500 {object} httptransport.ErrorResponse
// @Router /v1/drops/requesters/{requester_id} [get]
func (h Handler) GetRequesterHandler(ctx context.Context, requesterID string) (httptransport.RequesterResponse, error) {
	result, err := h.GetRequester.Execute(ctx, queries.GetRequesterQuery{RequesterID: requesterID})
	if err != nil {
		return httptransport.RequesterResponse{}, err
	}
	requester := result.Requester
	return httptransport.RequesterResponse{
		RequesterID:      requester.RequesterID,
		Username:         requester.Username,
		DisplayName:      requester.DisplayName,
		Verified:         requester.Verified,
		TotalAllocations: requester.TotalAllocations,
		CreatedAt:        requester.CreatedAt.UTC().Format(time.RFC3339),
		LastSeenAt:       requester.LastSeenAt.UTC().Format(time.RFC3339),
	}, nil
}

// ListAllocationsHandler godoc
// @Summary List a requester's allocations
// @Description Returns allocation audit events for the requester, newest first.
// @Tags drop-allocation-engine
// @Produce json
// @Param requester_id path string true "Requester id"
// @Success 200 {object} httptransport.ListAllocationsResponse
// @Failure 400 {object} httptransport.ErrorResponse
// @Failure 500 {object} httptransport.ErrorResponse
// @Router /v1/drops/requesters/{requester_id}/allocations [get]
func (h Handler) ListAllocationsHandler(ctx context.Context, requesterID string) (httptransport.ListAllocationsResponse, error) {
	result, err := h.ListAllocations.Execute(ctx, queries.ListAllocationsQuery{RequesterID: requesterID})
	if err != nil {
		return httptransport.ListAllocationsResponse{}, err
	}
	items := make([]httptransport.AllocationDTO, 0, len(result.Items))
	for _, event := range result.Items {
		items = append(items, httptransport.AllocationDTO{
			AllocationEventID: event.EventID,
			ItemID:            event.ItemID,
			Action:            string(event.Action),
			AllocationDay:     event.AllocationDay.String(),
			OccurredAt:        event.OccurredAt.UTC().Format(time.RFC3339),
		})
	}
	return httptransport.ListAllocationsResponse{RequesterID: requesterID, Items: items}, nil
}

// GatewayCommandHandler godoc
// @Summary Handle a chat command
// @Description Accepts a chat message and returns the Markdown reply. /start and /claim run the drop workflow.
// @Tags drop-allocation-engine
// @Accept json
// @Produce json
// @Param request body httptransport.GatewayCommandRequest true "Chat message"
// @Success 200 {object} httptransport.GatewayCommandResponse
// @Failure 400 {object} httptransport.ErrorResponse
// @Failure 429 {object} httptransport.GatewayCommandResponse
// @Router /v1/gateway/commands [post]
func (h Handler) GatewayCommandHandler(
	ctx context.Context,
	req httptransport.GatewayCommandRequest,
) (httptransport.GatewayCommandResponse, error) {
	logger := application.ResolveLogger(h.Logger)
	requesterID := strings.TrimSpace(req.RequesterID)
	if requesterID == "" {
		return httptransport.GatewayCommandResponse{}, domainerrors.ErrInvalidDropRequest
	}

	ctx, span := tracer.Start(ctx, "http.GatewayCommand",
		trace.WithAttributes(attribute.String("requester_id", requesterID)),
	)
	defer span.End()

	if !h.Throttle.Allow(requesterID) {
		logger.Warn("gateway command throttled",
			"event", "http_gateway_command_throttled",
			"module", application.ModuleName,
			"layer", "transport",
			"requester_id", requesterID,
		)
		return httptransport.GatewayCommandResponse{
			Reply:     chattransport.RenderThrottled(),
			ParseMode: chattransport.ParseMode,
		}, domainerrors.ErrCommandThrottled
	}

	marker := h.marker()
	kind := chattransport.ParseCommand(req.Text)
	span.SetAttributes(attribute.String("command", string(kind)))

	switch kind {
	case chattransport.CommandHelp:
		return reply(chattransport.RenderHelp(marker), ""), nil
	case chattransport.CommandText:
		return reply(chattransport.RenderHint(), ""), nil
	}

	displayName := chattransport.DisplayName(req.FirstName, req.LastName)
	logger.Info("gateway drop command received",
		"event", "http_gateway_drop_command_received",
		"module", application.ModuleName,
		"layer", "transport",
		"requester_id", requesterID,
		"display_name", displayName,
	)
	result, err := h.RequestDrop.Execute(ctx, commands.RequestDropCommand{
		RequesterID: requesterID,
		Username:    req.Username,
		DisplayName: displayName,
	})
	if err != nil {
		return httptransport.GatewayCommandResponse{}, err
	}
	span.SetAttributes(attribute.String("outcome", string(result.Outcome)))
	return reply(chattransport.RenderDropResult(result, displayName, marker), string(result.Outcome)), nil
}

func (h Handler) marker() string {
	if strings.TrimSpace(h.VerificationMarker) == "" {
		return services.DefaultVerificationMarker
	}
	return h.VerificationMarker
}

func reply(text string, outcome string) httptransport.GatewayCommandResponse {
	return httptransport.GatewayCommandResponse{
		Reply:     text,
		ParseMode: chattransport.ParseMode,
		Outcome:   outcome,
	}
}

func mapDropResult(result commands.RequestDropResult) httptransport.DropResultResponse {
	resp := httptransport.DropResultResponse{
		Outcome:   string(result.Outcome),
		Available: mapSummary(result.Available),
	}
	if result.Allocation != nil {
		item := result.Allocation.Item
		resp.ItemID = item.ItemID
		resp.Category = item.Category
		resp.Fields = mapFields(item.Payload)
		resp.AllocationEventID = result.Allocation.Event.EventID
		resp.AllocationDay = result.Allocation.Event.AllocationDay.String()
	}
	return resp
}

func mapSummary(summary entities.AvailableSummary) httptransport.AvailableSummaryDTO {
	categories := make([]httptransport.CategoryCountDTO, 0, len(summary.Categories))
	for _, category := range summary.Categories {
		categories = append(categories, httptransport.CategoryCountDTO{
			Category: category.Category,
			Count:    category.Count,
		})
	}
	return httptransport.AvailableSummaryDTO{Categories: categories, Total: summary.Total}
}

func mapFields(payload entities.Payload) []httptransport.PayloadFieldDTO {
	fields := make([]httptransport.PayloadFieldDTO, 0, len(payload))
	for _, field := range payload {
		fields = append(fields, httptransport.PayloadFieldDTO{Name: field.Name, Value: field.Value})
	}
	return fields
}
