package connectwise

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spec-kit/ticket-bridge/internal/domain"
)

type reference struct {
	ID         int    `json:"id"`
	Identifier string `json:"identifier,omitempty"`
	Name       string `json:"name,omitempty"`
}

type ticketDTO struct {
	ID         int        `json:"id"`
	Summary    string     `json:"summary"`
	Company    *reference `json:"company,omitempty"`
	Contact    *reference `json:"contact,omitempty"`
	Owner      *reference `json:"owner,omitempty"`
	ClosedFlag bool       `json:"closedFlag"`
}

func (t ticketDTO) toDomain() domain.Ticket {
	ticket := domain.Ticket{
		ID:      strconv.Itoa(t.ID),
		Summary: t.Summary,
		Closed:  t.ClosedFlag,
	}
	if t.Company != nil {
		ticket.CompanyID = strconv.Itoa(t.Company.ID)
	}
	if t.Contact != nil {
		ticket.ContactName = t.Contact.Name
	}
	if t.Owner != nil {
		ticket.OwnerIdentifier = t.Owner.Identifier
	}
	return ticket
}

type noteDTO struct {
	ID                    int        `json:"id"`
	Text                  string     `json:"text"`
	DetailDescriptionFlag bool       `json:"detailDescriptionFlag"`
	InternalAnalysisFlag  bool       `json:"internalAnalysisFlag"`
	ResolutionFlag        bool       `json:"resolutionFlag"`
	Contact               *reference `json:"contact,omitempty"`
	Member                *reference `json:"member,omitempty"`
	CreatedBy             string     `json:"createdBy,omitempty"`
	DateCreated           string     `json:"dateCreated"`
}

func (n noteDTO) author() string {
	switch {
	case n.Contact != nil && n.Contact.Name != "":
		return n.Contact.Name
	case n.Member != nil && n.Member.Name != "":
		return n.Member.Name
	default:
		return n.CreatedBy
	}
}

type timeEntryDTO struct {
	ID                         int        `json:"id"`
	Notes                      string     `json:"notes"`
	Member                     *reference `json:"member,omitempty"`
	DateEntered                string     `json:"dateEntered"`
	AddToDetailDescriptionFlag bool       `json:"addToDetailDescriptionFlag"`
	AddToInternalAnalysisFlag  bool       `json:"addToInternalAnalysisFlag"`
	AddToResolutionFlag        bool       `json:"addToResolutionFlag"`
}

// mergeDiscussion unifies notes and time entries with notes into one discussion.
func mergeDiscussion(notes []noteDTO, entries []timeEntryDTO) []domain.DiscussionEntry {
	out := make([]domain.DiscussionEntry, 0, len(notes)+len(entries))
	for _, n := range notes {
		out = append(out, domain.DiscussionEntry{
			ID:         strconv.Itoa(n.ID),
			AuthorName: n.author(),
			Text:       n.Text,
			CreatedAt:  domain.ParseEntryTime(n.DateCreated),
			Source:     domain.EntrySourceNote,
			Internal:   n.InternalAnalysisFlag,
			Resolution: n.ResolutionFlag,
			Detail:     n.DetailDescriptionFlag,
		})
	}
	for _, te := range entries {
		if strings.TrimSpace(te.Notes) == "" {
			continue
		}
		author := ""
		if te.Member != nil {
			author = te.Member.Name
		}
		out = append(out, domain.DiscussionEntry{
			ID:         strconv.Itoa(te.ID),
			AuthorName: author,
			Text:       te.Notes,
			CreatedAt:  domain.ParseEntryTime(te.DateEntered),
			Source:     domain.EntrySourceTimeEntry,
			Internal:   te.AddToInternalAnalysisFlag,
			Resolution: te.AddToResolutionFlag,
			Detail:     te.AddToDetailDescriptionFlag,
		})
	}
	return out
}

type timeEntryRequest struct {
	Company                    *reference `json:"company,omitempty"`
	CompanyType                string     `json:"companyType"`
	ChargeToID                 int        `json:"chargeToId"`
	ChargeToType               string     `json:"chargeToType"`
	BillableOption             string     `json:"billableOption"`
	ActualHours                float64    `json:"actualHours"`
	TimeStart                  string     `json:"timeStart"`
	Notes                      string     `json:"notes"`
	AddToDetailDescriptionFlag bool       `json:"addToDetailDescriptionFlag"`
	AddToInternalAnalysisFlag  bool       `json:"addToInternalAnalysisFlag"`
	AddToResolutionFlag        bool       `json:"addToResolutionFlag"`
	EmailResourceFlag          bool       `json:"emailResourceFlag"`
	EmailContactFlag           bool       `json:"emailContactFlag"`
	EmailCcFlag                bool       `json:"emailCcFlag"`
	EmailCc                    string     `json:"emailCc,omitempty"`
	InvoiceReady               int        `json:"invoiceReady"`
}

type noteRequest struct {
	TicketID              int    `json:"ticketId"`
	Text                  string `json:"text"`
	DetailDescriptionFlag bool   `json:"detailDescriptionFlag"`
	InternalAnalysisFlag  bool   `json:"internalAnalysisFlag"`
	ResolutionFlag        bool   `json:"resolutionFlag"`
	IssueFlag             bool   `json:"issueFlag"`
	ProcessNotifications  bool   `json:"processNotifications"`
	InternalFlag          bool   `json:"internalFlag"`
	ExternalFlag          bool   `json:"externalFlag"`
}

type patchOperation struct {
	Op    string `json:"op"`
	Path  string `json:"path"`
	Value any    `json:"value"`
}

type idDTO struct {
	ID int `json:"id"`
}

func (d idDTO) remoteID() (string, error) {
	if d.ID <= 0 {
		return "", fmt.Errorf("%s: response carried no id", systemName)
	}
	return strconv.Itoa(d.ID), nil
}
