package portal

import (
	"net/url"
	"strings"
	"time"
)

const portalTimestampLayout = "2006-01-02 15:04:05"

// Service types handled by the security-services desk.
const (
	ServiceSerialNumberCheck     = "serial_number_check"
	ServiceStolenPhoneCheck      = "stolen_phone_check"
	ServiceCallHistory           = "call_history"
	ServiceUnblockCall           = "unblock_call"
	ServiceUnblockMomo           = "unblock_momo"
	ServiceMoneyRefund           = "money_refund"
	ServiceMomoTransaction       = "momo_transaction"
	ServiceBackofficeAppointment = "backoffice_appointment"
	ServiceRIBFollowup           = "rib_followup"
)

var serviceLabels = map[string]string{
	ServiceSerialNumberCheck:     "Serial number check",
	ServiceStolenPhoneCheck:      "Stolen phone check",
	ServiceCallHistory:           "Call history",
	ServiceUnblockCall:           "Unblock call",
	ServiceUnblockMomo:           "Unblock MoMo",
	ServiceMoneyRefund:           "Money refund",
	ServiceMomoTransaction:       "MoMo transaction",
	ServiceBackofficeAppointment: "Back-office appointment",
	ServiceRIBFollowup:           "RIB follow-up",
}

// ServiceLabel returns a display name for a service type. Unknown types are
// returned with underscores replaced by spaces.
func ServiceLabel(serviceType string) string {
	if label, ok := serviceLabels[serviceType]; ok {
		return label
	}
	return strings.ReplaceAll(strings.TrimSpace(serviceType), "_", " ")
}

// StatusLabel returns a display name for a status ("in_progress" → "in progress").
func StatusLabel(status string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(status)), "_", " ")
}

// Request statuses.
const (
	StatusNew        = "new"
	StatusPending    = "pending"
	StatusInProgress = "in_progress"
	StatusCompleted  = "completed"
	StatusRejected   = "rejected"
)

// ServiceRequest mirrors an entry of /api/security-services/requests.
type ServiceRequest struct {
	ID              int64  `json:"id"`
	ReferenceNumber string `json:"reference_number"`
	ServiceType     string `json:"service_type"`
	Status          string `json:"status"`
	Priority        string `json:"priority"`
	FullName        string `json:"full_name"`
	PhoneNumber     string `json:"phone_number"`
	IDPassport      string `json:"id_passport"`
	Details         string `json:"details"`
	AssignedTo      string `json:"assigned_to"`
	CreatedBy       string `json:"created_by"`
	CreatedAt       string `json:"created_at"`
	UpdatedAt       string `json:"updated_at"`
}

// IsOpen reports whether the request still needs work.
func (r ServiceRequest) IsOpen() bool {
	switch strings.ToLower(strings.TrimSpace(r.Status)) {
	case StatusCompleted, StatusRejected:
		return false
	default:
		return true
	}
}

// ParsedCreatedAt returns CreatedAt as a time, or zero if unparsable.
func (r ServiceRequest) ParsedCreatedAt() time.Time {
	return parseTimestamp(r.CreatedAt)
}

// ParsedUpdatedAt returns UpdatedAt as a time, or zero if unparsable.
func (r ServiceRequest) ParsedUpdatedAt() time.Time {
	return parseTimestamp(r.UpdatedAt)
}

// RequestListResponse mirrors /api/security-services/requests.
type RequestListResponse struct {
	Items []ServiceRequest `json:"items"`
	Total int              `json:"total"`
}

// DeskStats mirrors /api/security-services/stats.
type DeskStats struct {
	ByStatus      map[string]int `json:"by_status"`
	ByServiceType map[string]int `json:"by_service_type"`
	OverdueCount  int            `json:"overdue_count"`
	GeneratedAt   string         `json:"generated_at"`
}

// RequestFilter narrows ListRequests.
type RequestFilter struct {
	Status      []string
	ServiceType string
	AssignedTo  string
}

// Key returns a stable identifier for the filter, suitable for cache keys.
func (f RequestFilter) Key() string {
	return f.values().Encode()
}

func (f RequestFilter) values() url.Values {
	values := url.Values{}
	if len(f.Status) > 0 {
		statuses := make([]string, 0, len(f.Status))
		for _, s := range f.Status {
			if s = strings.TrimSpace(s); s != "" {
				statuses = append(statuses, s)
			}
		}
		if len(statuses) > 0 {
			values.Set("status", strings.Join(statuses, ","))
		}
	}
	if st := strings.TrimSpace(f.ServiceType); st != "" {
		values.Set("service_type", st)
	}
	if who := strings.TrimSpace(f.AssignedTo); who != "" {
		values.Set("assigned_to", who)
	}
	return values
}

// OpenFilter selects requests that still need work.
func OpenFilter() RequestFilter {
	return RequestFilter{Status: []string{StatusNew, StatusPending, StatusInProgress}}
}

// StatusUpdate is the PATCH body for a request.
type StatusUpdate struct {
	Status     string `json:"status"`
	AssignedTo string `json:"assigned_to,omitempty"`
	UpdatedBy  string `json:"updated_by,omitempty"`
}

func parseTimestamp(value string) time.Time {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}
	}
	if ts, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return ts
	}
	if ts, err := time.ParseInLocation(portalTimestampLayout, value, time.Local); err == nil {
		return ts
	}
	return time.Time{}
}
