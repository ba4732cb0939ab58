package main

import (
	"encoding/json"
	"fmt"

	"dropvault/contexts/drop-distribution/drop-allocation-engine/application/commands"
	"dropvault/contexts/drop-distribution/drop-allocation-engine/domain/entities"
)

type itemFile struct {
	Category string          `json:"category"`
	Payload  json.RawMessage `json:"payload"`
}

// parseItems decodes the provisioning file. Payload objects keep their key
// order.
func parseItems(raw []byte) ([]commands.ProvisionItem, error) {
	var rows []itemFile
	if err := json.Unmarshal(raw, &rows); err != nil {
		return nil, err
	}
	items := make([]commands.ProvisionItem, 0, len(rows))
	for i, row := range rows {
		payload, err := entities.ParsePayload(row.Payload)
		if err != nil {
			return nil, fmt.Errorf("item %d: %w", i, err)
		}
		items = append(items, commands.ProvisionItem{Category: row.Category, Payload: payload})
	}
	return items, nil
}

func sampleItems() []commands.ProvisionItem {
	return []commands.ProvisionItem{
		{Category: "Gift Card", Payload: entities.Payload{
			{Name: "code", Value: "DEMO-GIFT-0001"},
			{Name: "value", Value: "10 EUR"},
		}},
		{Category: "Gift Card", Payload: entities.Payload{
			{Name: "code", Value: "DEMO-GIFT-0002"},
			{Name: "value", Value: "10 EUR"},
		}},
		{Category: "Promo Code", Payload: entities.Payload{
			{Name: "code", Value: "WELCOME-DEMO-15"},
			{Name: "discount", Value: "15%"},
			{Name: "expires", Value: "2027-12-31"},
		}},
		{Category: "Beta Invite", Payload: entities.Payload{
			{Name: "invite", Value: "BETA-DEMO-7Q2X"},
			{Name: "note", Value: "single use"},
		}},
	}
}
