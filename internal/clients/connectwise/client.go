// Package connectwise implements the ticket-system side of the bridge against
// the ConnectWise Manage REST API, using per-tenant credentials.
package connectwise

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/ticket-bridge/internal/clients/restclient"
	"github.com/spec-kit/ticket-bridge/internal/config"
	"github.com/spec-kit/ticket-bridge/internal/domain"
	apperrors "github.com/spec-kit/ticket-bridge/pkg/util/errorutil"
)

const (
	systemName = "connectwise"
	pageSize   = "1000"

	// timeLayout is the timestamp format the API accepts in payloads.
	timeLayout = "2006-01-02T15:04:05Z"
)

// Client talks to ConnectWise Manage on behalf of any tenant.
type Client struct {
	rest            *restclient.Client
	baseURLTemplate string
	defaultSite     string
	logger          *zap.Logger
}

// NewClient builds a client from configuration. httpClient may be nil.
func NewClient(cfg config.ConnectwiseConfig, httpClient *http.Client, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		rest: restclient.New(restclient.Options{
			Name:       systemName,
			HTTPClient: httpClient,
			Timeout:    cfg.Timeout,
			MaxRetries: cfg.MaxRetries,
			UserAgent:  "ticket-bridge",
			Logger:     logger,
		}),
		baseURLTemplate: strings.TrimRight(cfg.BaseURLTemplate, "/"),
		defaultSite:     cfg.DefaultSite,
		logger:          logger,
	}
}

func (c *Client) baseURL(tenant *domain.TenantConfig) string {
	if !strings.Contains(c.baseURLTemplate, "%s") {
		return c.baseURLTemplate
	}
	site := strings.TrimSpace(tenant.ConnectwiseSite)
	if site == "" {
		site = c.defaultSite
	}
	return fmt.Sprintf(c.baseURLTemplate, site)
}

func authHeader(tenant *domain.TenantConfig) http.Header {
	raw := tenant.ConnectwiseCompanyID + "+" + tenant.ConnectwisePublicKey + ":" + tenant.ConnectwisePrivateKey
	h := http.Header{}
	h.Set("Authorization", "Basic "+base64.StdEncoding.EncodeToString([]byte(raw)))
	if tenant.ConnectwiseClientID != "" {
		h.Set("clientId", tenant.ConnectwiseClientID)
	}
	return h
}

func (c *Client) call(ctx context.Context, tenant *domain.TenantConfig, method, path string, query url.Values, body, out any) error {
	target := c.baseURL(tenant) + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}
	err := c.rest.Do(ctx, restclient.Request{
		Method: method,
		URL:    target,
		Header: authHeader(tenant),
		Body:   body,
	}, out)
	if err != nil {
		return apperrors.NewUpstreamError(systemName, err)
	}
	return nil
}

// FetchTicket loads a ticket together with its notes and the time entries
// that carry notes.
func (c *Client) FetchTicket(ctx context.Context, tenant *domain.TenantConfig, ticketID string) (*domain.Ticket, error) {
	id, err := parseID(ticketID)
	if err != nil {
		return nil, err
	}

	var raw ticketDTO
	if err := c.call(ctx, tenant, http.MethodGet, "/service/tickets/"+strconv.Itoa(id), nil, nil, &raw); err != nil {
		return nil, fmt.Errorf("fetch ticket %d: %w", id, err)
	}

	var notes []noteDTO
	if err := c.call(ctx, tenant, http.MethodGet, fmt.Sprintf("/service/tickets/%d/notes", id),
		url.Values{"pageSize": {pageSize}}, nil, &notes); err != nil {
		return nil, fmt.Errorf("fetch notes of ticket %d: %w", id, err)
	}

	var entries []timeEntryDTO
	if err := c.call(ctx, tenant, http.MethodGet, "/time/entries", url.Values{
		"conditions": {fmt.Sprintf(`chargeToId=%d AND chargeToType="ServiceTicket"`, id)},
		"pageSize":   {pageSize},
	}, nil, &entries); err != nil {
		return nil, fmt.Errorf("fetch time entries of ticket %d: %w", id, err)
	}

	ticket := raw.toDomain()
	ticket.Discussion = mergeDiscussion(notes, entries)
	c.logger.Debug("ticket fetched",
		zap.String("tenant_id", tenant.TenantID),
		zap.String("ticket_id", ticket.ID),
		zap.Int("notes", len(notes)),
		zap.Int("time_entries", len(entries)),
	)
	return &ticket, nil
}

// FetchOpenTickets lists open tickets of a company, newest first, without discussion.
func (c *Client) FetchOpenTickets(ctx context.Context, tenant *domain.TenantConfig, companyID string) ([]domain.Ticket, error) {
	id, err := parseID(companyID)
	if err != nil {
		return nil, err
	}
	var raw []ticketDTO
	if err := c.call(ctx, tenant, http.MethodGet, "/service/tickets", url.Values{
		"conditions": {fmt.Sprintf("company/id=%d AND closedFlag=false", id)},
		"fields":     {"id,summary,company,contact,owner,closedFlag"},
		"orderBy":    {"id desc"},
		"pageSize":   {pageSize},
	}, nil, &raw); err != nil {
		return nil, fmt.Errorf("fetch open tickets of company %d: %w", id, err)
	}
	tickets := make([]domain.Ticket, 0, len(raw))
	for _, t := range raw {
		tickets = append(tickets, t.toDomain())
	}
	return tickets, nil
}

// CreateTimeEntry charges a time entry to the ticket and returns its id.
func (c *Client) CreateTimeEntry(ctx context.Context, tenant *domain.TenantConfig, draft domain.TimeEntryDraft) (string, error) {
	id, err := parseID(draft.TicketID)
	if err != nil {
		return "", err
	}

	// time entries are charged to the ticket's company
	var owner ticketDTO
	if err := c.call(ctx, tenant, http.MethodGet, "/service/tickets/"+strconv.Itoa(id),
		url.Values{"fields": {"id,company"}}, nil, &owner); err != nil {
		return "", fmt.Errorf("fetch company of ticket %d: %w", id, err)
	}

	start := draft.TimeStart
	if start.IsZero() {
		start = time.Now()
	}
	payload := timeEntryRequest{
		Company:                    owner.Company,
		CompanyType:                "Client",
		ChargeToID:                 id,
		ChargeToType:               "ServiceTicket",
		BillableOption:             "Billable",
		ActualHours:                draft.ActualHours,
		TimeStart:                  start.UTC().Format(timeLayout),
		Notes:                      draft.Notes,
		AddToDetailDescriptionFlag: draft.DetailDescription,
		AddToInternalAnalysisFlag:  draft.InternalAnalysis,
		AddToResolutionFlag:        draft.Resolution,
		EmailResourceFlag:          draft.EmailResource,
		EmailContactFlag:           draft.EmailContact,
		EmailCcFlag:                draft.EmailCc,
		EmailCc:                    draft.Cc,
		InvoiceReady:               1,
	}

	var created idDTO
	if err := c.call(ctx, tenant, http.MethodPost, "/time/entries", nil, payload, &created); err != nil {
		return "", fmt.Errorf("create time entry on ticket %d: %w", id, err)
	}
	return created.remoteID()
}

// CreateNote adds a note to the ticket and returns its id.
func (c *Client) CreateNote(ctx context.Context, tenant *domain.TenantConfig, draft domain.NoteDraft) (string, error) {
	id, err := parseID(draft.TicketID)
	if err != nil {
		return "", err
	}
	payload := noteRequest{
		TicketID:              id,
		Text:                  draft.Text,
		DetailDescriptionFlag: draft.DetailDescription,
		InternalAnalysisFlag:  draft.InternalAnalysis,
		ResolutionFlag:        draft.Resolution,
		ProcessNotifications:  true,
		ExternalFlag:          !draft.InternalAnalysis,
		InternalFlag:          draft.InternalAnalysis,
	}
	var created idDTO
	if err := c.call(ctx, tenant, http.MethodPost, fmt.Sprintf("/service/tickets/%d/notes", id), nil, payload, &created); err != nil {
		return "", fmt.Errorf("create note on ticket %d: %w", id, err)
	}
	return created.remoteID()
}

// AssignTicket makes memberID the ticket owner.
func (c *Client) AssignTicket(ctx context.Context, tenant *domain.TenantConfig, ticketID string, memberID int) error {
	id, err := parseID(ticketID)
	if err != nil {
		return err
	}
	patch := []patchOperation{{Op: "replace", Path: "owner", Value: map[string]int{"id": memberID}}}
	if err := c.call(ctx, tenant, http.MethodPatch, "/service/tickets/"+strconv.Itoa(id), nil, patch, nil); err != nil {
		return fmt.Errorf("assign ticket %d: %w", id, err)
	}
	return nil
}

func parseID(value string) (int, error) {
	id, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil || id <= 0 {
		return 0, apperrors.NewValidationError("invalid connectwise id", map[string]any{"id": value})
	}
	return id, nil
}
