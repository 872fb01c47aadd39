// Package sheetsimport reads a participant list from a Google Sheet and turns
// it into submission inputs for an event. Moderators collect signups in a
// spreadsheet (name in column A, Twitch login in column B, header row
// optional) and import it instead of typing the roster by hand.
package sheetsimport

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/api/option"
	sheetsv4 "google.golang.org/api/sheets/v4"

	"github.com/cma2819/relaying-raids/config"
	"github.com/cma2819/relaying-raids/relay"
)

const defaultRange = "A:B"

// Client wraps the Sheets service for participant imports.
type Client struct {
	srv *sheetsv4.Service
}

// New builds a client from config. An API key covers public sheets; a service
// account credentials file covers private ones. Returns nil when neither is
// configured (import disabled).
func New(ctx context.Context, cfg *config.Config) (*Client, error) {
	var opts []option.ClientOption
	switch {
	case cfg.SheetsCredentialsFile != "":
		opts = append(opts,
			option.WithCredentialsFile(cfg.SheetsCredentialsFile),
			option.WithScopes(sheetsv4.SpreadsheetsReadonlyScope))
	case cfg.SheetsAPIKey != "":
		opts = append(opts, option.WithAPIKey(cfg.SheetsAPIKey))
	default:
		return nil, nil
	}
	srv, err := sheetsv4.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	return &Client{srv: srv}, nil
}

// Fetch reads the participant rows of the given spreadsheet. readRange
// defaults to columns A:B of the first sheet.
func (c *Client) Fetch(ctx context.Context, spreadsheetID, readRange string) ([]relay.SubmissionInput, error) {
	if readRange == "" {
		readRange = defaultRange
	}
	resp, err := c.srv.Spreadsheets.Values.Get(spreadsheetID, readRange).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("read spreadsheet %s: %w", spreadsheetID, err)
	}
	return ParseRows(resp.Values)
}

// ParseRows converts raw sheet rows into submission inputs. A first row whose
// second cell doesn't look like a login (contains spaces or says "twitch") is
// treated as a header and dropped. Blank rows are skipped.
func ParseRows(values [][]interface{}) ([]relay.SubmissionInput, error) {
	inputs := make([]relay.SubmissionInput, 0, len(values))
	for i, row := range values {
		name := cell(row, 0)
		login := cell(row, 1)
		if name == "" && login == "" {
			continue
		}
		if i == 0 && looksLikeHeader(login) {
			continue
		}
		if login == "" {
			return nil, fmt.Errorf("row %d: participant %q has no twitch login", i+1, name)
		}
		if name == "" {
			name = login
		}
		inputs = append(inputs, relay.SubmissionInput{Name: name, Twitch: login})
	}
	if len(inputs) == 0 {
		return nil, fmt.Errorf("spreadsheet contains no participants")
	}
	return inputs, nil
}

func cell(row []interface{}, idx int) string {
	if idx >= len(row) {
		return ""
	}
	return strings.TrimSpace(fmt.Sprint(row[idx]))
}

func looksLikeHeader(login string) bool {
	lower := strings.ToLower(login)
	return strings.Contains(lower, "twitch") || strings.Contains(login, " ")
}
