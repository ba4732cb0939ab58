package queries

import (
	"context"
	"log/slog"
	"strings"

	application "dropvault/contexts/drop-distribution/drop-allocation-engine/application"
	"dropvault/contexts/drop-distribution/drop-allocation-engine/domain/entities"
	domainerrors "dropvault/contexts/drop-distribution/drop-allocation-engine/domain/errors"
	"dropvault/contexts/drop-distribution/drop-allocation-engine/ports"
)

type GetRequesterQuery struct {
	RequesterID string
}

type GetRequesterResult struct {
	Requester entities.Requester
}

type GetRequesterUseCase struct {
	Requesters ports.RequesterRepository
	Logger     *slog.Logger
}

func (u GetRequesterUseCase) Execute(ctx context.Context, query GetRequesterQuery) (GetRequesterResult, error) {
	logger := application.ResolveLogger(u.Logger)
	if strings.TrimSpace(query.RequesterID) == "" {
		return GetRequesterResult{}, domainerrors.ErrInvalidDropRequest
	}

	requester, err := u.Requesters.GetRequester(ctx, query.RequesterID)
	if err != nil {
		logger.Warn("get requester failed",
			"event", "get_requester_failed",
			"module", application.ModuleName,
			"layer", "application",
			"requester_id", query.RequesterID,
			"error", err.Error(),
		)
		return GetRequesterResult{}, err
	}
	return GetRequesterResult{Requester: requester}, nil
}
