// Package notify delivers statement outcomes to systems outside the pipeline.
package notify

import (
	"context"
	"fmt"
	"strings"

	"github.com/jomei/notionapi"

	"github.com/dvloznov/statement-pipeline/internal/domain"
)

// Notion rich text values are limited to 2000 characters.
const maxRichText = 2000

// PageCreator creates pages in a Notion database.
type PageCreator interface {
	CreatePage(ctx context.Context, databaseID string, properties notionapi.Properties) (*notionapi.Page, error)
}

// NotionClient is the PageCreator backed by the Notion SDK.
type NotionClient struct {
	client *notionapi.Client
}

// NewNotionClient creates a NotionClient with the provided integration token.
func NewNotionClient(token string) *NotionClient {
	return &NotionClient{
		client: notionapi.NewClient(notionapi.Token(token)),
	}
}

// CreatePage creates a new page in a Notion database with the given properties.
func (n *NotionClient) CreatePage(ctx context.Context, databaseID string, properties notionapi.Properties) (*notionapi.Page, error) {
	req := &notionapi.PageCreateRequest{
		Parent: notionapi.Parent{
			Type:       notionapi.ParentTypeDatabaseID,
			DatabaseID: notionapi.DatabaseID(databaseID),
		},
		Properties: properties,
	}

	page, err := n.client.Page.Create(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("CreatePage: %w", err)
	}
	return page, nil
}

// NotionNotifier adds one page per terminal statement outcome to a review
// database. The database needs the properties written by OutcomeProperties.
type NotionNotifier struct {
	pages      PageCreator
	databaseID string
}

func NewNotionNotifier(pages PageCreator, databaseID string) *NotionNotifier {
	return &NotionNotifier{pages: pages, databaseID: databaseID}
}

func (n *NotionNotifier) EnqueueNotification(ctx context.Context, note domain.Notification) error {
	if _, err := n.pages.CreatePage(ctx, n.databaseID, OutcomeProperties(note)); err != nil {
		return fmt.Errorf("NotionNotifier: statement %s: %w", note.StatementID, err)
	}
	return nil
}

// OutcomeProperties maps a notification to Notion page properties.
func OutcomeProperties(note domain.Notification) notionapi.Properties {
	created := note.CreatedAt
	props := notionapi.Properties{
		"Statement ID": notionapi.TitleProperty{
			Title: richText(note.StatementID),
		},
		"Status": notionapi.SelectProperty{
			Select: notionapi.Option{Name: string(note.Status)},
		},
		"Transactions": notionapi.NumberProperty{
			Number: float64(note.TransactionCount),
		},
		"Flagged": notionapi.NumberProperty{
			Number: float64(note.FlaggedCount),
		},
		"Needs Review": notionapi.CheckboxProperty{
			Checkbox: note.Status == domain.StatusFailed || note.FlaggedCount > 0,
		},
		"Finished At": notionapi.DateProperty{
			Date: &notionapi.DateObject{
				Start: (*notionapi.Date)(&created),
			},
		},
	}

	if len(note.Errors) > 0 {
		props["Errors"] = notionapi.RichTextProperty{
			RichText: richText(truncate(strings.Join(note.Errors, "\n"), maxRichText)),
		}
	}
	return props
}

func richText(content string) []notionapi.RichText {
	return []notionapi.RichText{
		{
			Type: notionapi.ObjectTypeText,
			Text: &notionapi.Text{Content: content},
		},
	}
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
