package main

import (
	"testing"

	"github.com/Jacobbrewer1/discordgo"
	"github.com/Jacobbrewer1/hound/pkg/entities"
	"github.com/stretchr/testify/require"
)

func TestOptionValue(t *testing.T) {
	tests := []struct {
		name string
		in   any
		want string
	}{
		{"string", "hello", "hello"},
		{"integer", float64(30), "30"},
		{"fraction", 1.5, "1.5"},
		{"bool", true, "true"},
		{"nil", nil, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, optionValue(tt.in))
		})
	}
}

func TestFlattenOptions(t *testing.T) {
	opts := []*discordgo.ApplicationCommandInteractionDataOption{
		{
			Name: "add",
			Type: discordgo.ApplicationCommandOptionSubCommand,
			Options: []*discordgo.ApplicationCommandInteractionDataOption{
				{Name: "user", Type: discordgo.ApplicationCommandOptionUser, Value: "123"},
				{Name: "reason", Type: discordgo.ApplicationCommandOptionString, Value: "helping"},
			},
		},
	}

	got := make(map[string]string)
	flattenOptions(got, opts)
	require.Equal(t, map[string]string{
		subcommandOption: "add",
		"user":           "123",
		"reason":         "helping",
	}, got)
}

func TestModalValues(t *testing.T) {
	data := discordgo.ModalSubmitInteractionData{
		CustomID: AddUserModalID,
		Components: []discordgo.MessageComponent{
			&discordgo.ActionsRow{Components: []discordgo.MessageComponent{
				&discordgo.TextInput{CustomID: addUserInputID, Value: "  <@42> "},
			}},
			&discordgo.ActionsRow{Components: []discordgo.MessageComponent{
				&discordgo.TextInput{CustomID: addReasonInputID, Value: "needs access"},
			}},
		},
	}

	require.Equal(t, map[string]string{
		addUserInputID:   "<@42>",
		addReasonInputID: "needs access",
	}, modalValues(data))
}

func TestTicketRequest(t *testing.T) {
	cfg := entities.DefaultTicketConfig()
	cfg.TicketTypes = []*entities.TicketType{
		{
			ID:   "bug-report",
			Name: "Bug Report",
			Questions: []entities.TicketQuestion{
				{Label: "What happened?", Required: true},
				{Label: "Steps to reproduce"},
			},
		},
	}

	t.Run("typed", func(t *testing.T) {
		req := ticketRequest(cfg, "bug-report", map[string]string{
			questionInputID + "0": "It crashed",
			questionInputID + "1": "",
		})
		require.Equal(t, "bug-report", req.TypeID)
		require.Equal(t, []entities.TicketResponse{
			{Question: "What happened?", Answer: "It crashed"},
			{Question: "Steps to reproduce", Answer: ""},
		}, req.Responses)
	})

	t.Run("general", func(t *testing.T) {
		req := ticketRequest(cfg, "", map[string]string{subjectInputID: "Need help"})
		require.Empty(t, req.TypeID)
		require.Equal(t, "Need help", req.Subject)
		require.Empty(t, req.Responses)
	})
}

func TestTruncate(t *testing.T) {
	require.Equal(t, "abc", truncate("abc", 5))
	require.Equal(t, "ab", truncate("abc", 2))
	require.Equal(t, "éé", truncate("ééé", 2))
}
