package service

import (
	"fmt"
	"sort"
	"time"

	"github.com/traincal/scheduling-api/internal/models"
	appErrors "github.com/traincal/scheduling-api/pkg/errors"
)

// Schedule payload modes. The discriminant is validated on every read and
// write; an unknown mode or a payload whose shape does not match its mode is
// rejected rather than trusted.
const (
	ScheduleModeCustom = "CUSTOM"
	ScheduleModeRange  = "RANGE"
)

// Validation error kinds attached to per-session field errors.
const (
	errKindStructural = "STRUCTURAL"
	errKindLogical    = "LOGICAL"
)

// SessionInput is the wire shape of one proposed session.
type SessionInput struct {
	Date      string `json:"date"`
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
	Active    *bool  `json:"active,omitempty"`
	Label     string `json:"label,omitempty"`
}

// IsActive defaults the active flag to true when absent.
func (s SessionInput) IsActive() bool {
	return s.Active == nil || *s.Active
}

// UniformRange describes a repeating uniform-time schedule between two dates.
type UniformRange struct {
	StartDate string `json:"start_date"`
	EndDate   string `json:"end_date"`
	Weekdays  []int  `json:"weekdays"`
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
}

// SchedulePayload is the tagged variant exchanged with callers: a mode
// discriminant plus one fixed-shape payload per mode.
type SchedulePayload struct {
	Mode     string         `json:"mode"`
	Sessions []SessionInput `json:"sessions,omitempty"`
	Range    *UniformRange  `json:"range,omitempty"`
}

// ScheduleValidator checks the structural and temporal correctness of a
// proposed session set. It never mutates its input and is the single source
// of truth for structural correctness: it runs server-side on every create
// and on every session replacement regardless of client-side checks.
type ScheduleValidator struct{}

// NewScheduleValidator instantiates ScheduleValidator.
func NewScheduleValidator() *ScheduleValidator {
	return &ScheduleValidator{}
}

// Expand normalises a payload into a concrete session list. CUSTOM passes the
// explicit list through; RANGE expands weekday occurrences between the two
// dates. Shape mismatches are structural errors.
func (v *ScheduleValidator) Expand(payload SchedulePayload) ([]SessionInput, error) {
	switch payload.Mode {
	case ScheduleModeCustom:
		if payload.Range != nil {
			return nil, wrapStructural("custom schedule must not carry a range payload")
		}
		return payload.Sessions, nil
	case ScheduleModeRange:
		if payload.Range == nil {
			return nil, wrapStructural("range schedule requires a range payload")
		}
		if len(payload.Sessions) > 0 {
			return nil, wrapStructural("range schedule must not carry an explicit session list")
		}
		return v.expandRange(*payload.Range)
	case "":
		return nil, wrapStructural("schedule mode is required")
	default:
		return nil, wrapStructural(fmt.Sprintf("unknown schedule mode %q", payload.Mode))
	}
}

func (v *ScheduleValidator) expandRange(r UniformRange) ([]SessionInput, error) {
	start, err := time.Parse(models.DateLayout, r.StartDate)
	if err != nil {
		return nil, wrapStructural(fmt.Sprintf("malformed range start date %q", r.StartDate))
	}
	end, err := time.Parse(models.DateLayout, r.EndDate)
	if err != nil {
		return nil, wrapStructural(fmt.Sprintf("malformed range end date %q", r.EndDate))
	}
	if end.Before(start) {
		return nil, appErrors.Clone(appErrors.ErrLogical, "range end date precedes start date")
	}
	if len(r.Weekdays) == 0 {
		return nil, wrapStructural("range schedule requires at least one weekday")
	}

	weekdays := make(map[int]struct{}, len(r.Weekdays))
	for _, wd := range r.Weekdays {
		if wd < 0 || wd > 6 {
			return nil, wrapStructural(fmt.Sprintf("weekday %d out of range 0..6", wd))
		}
		weekdays[wd] = struct{}{}
	}

	var sessions []SessionInput
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		if _, ok := weekdays[int(d.Weekday())]; !ok {
			continue
		}
		sessions = append(sessions, SessionInput{
			Date:      d.Format(models.DateLayout),
			StartTime: r.StartTime,
			EndTime:   r.EndTime,
		})
	}
	if len(sessions) == 0 {
		return nil, appErrors.Clone(appErrors.ErrLogical, "range schedule expands to no sessions")
	}
	return sessions, nil
}

// Validate checks a session list and reports every problem it finds, each
// attributable to one session index. Inactive sessions are excluded from the
// logical checks but still counted against the session list shape.
func (v *ScheduleValidator) Validate(sessions []SessionInput) error {
	if len(sessions) == 0 {
		return appErrors.Wrap(
			&models.ScheduleValidationError{Errors: []models.SessionFieldError{{Index: -1, Kind: errKindLogical, Message: "at least one session is required"}}},
			appErrors.ErrLogical.Code, appErrors.ErrLogical.Status, "empty session set",
		)
	}

	var fieldErrors []models.SessionFieldError

	type placed struct {
		index int
		sp    span
	}
	byDate := make(map[string][]placed)
	activeCount := 0

	for i, session := range sessions {
		structural := false
		if session.Date == "" {
			fieldErrors = append(fieldErrors, fieldError(i, "date", errKindStructural, "date is required"))
			structural = true
		} else if _, err := time.Parse(models.DateLayout, session.Date); err != nil {
			fieldErrors = append(fieldErrors, fieldError(i, "date", errKindStructural, fmt.Sprintf("malformed date %q, expected YYYY-MM-DD", session.Date)))
			structural = true
		}

		startMin, startOK := checkTimeField(&fieldErrors, i, "start_time", session.StartTime)
		endMin, endOK := checkTimeField(&fieldErrors, i, "end_time", session.EndTime)
		if !startOK || !endOK {
			structural = true
		}

		if structural || !session.IsActive() {
			continue
		}
		activeCount++

		if startMin >= endMin {
			fieldErrors = append(fieldErrors, fieldError(i, "", errKindLogical, "start must precede end"))
			continue
		}

		byDate[session.Date] = append(byDate[session.Date], placed{index: i, sp: span{start: startMin, end: endMin}})
	}

	for _, placements := range byDate {
		sort.Slice(placements, func(a, b int) bool { return placements[a].sp.start < placements[b].sp.start })
		for i := 1; i < len(placements); i++ {
			if placements[i].sp.start < placements[i-1].sp.end {
				fieldErrors = append(fieldErrors, fieldError(placements[i].index, "", errKindLogical,
					fmt.Sprintf("overlaps session %d on the same date", placements[i-1].index)))
			}
		}
	}

	if activeCount == 0 && len(fieldErrors) == 0 {
		fieldErrors = append(fieldErrors, models.SessionFieldError{Index: -1, Kind: errKindLogical, Message: "at least one active session is required"})
	}

	if len(fieldErrors) == 0 {
		return nil
	}

	detail := &models.ScheduleValidationError{Errors: fieldErrors}
	kind := appErrors.ErrLogical
	for _, fe := range fieldErrors {
		if fe.Kind == errKindStructural {
			kind = appErrors.ErrStructural
			break
		}
	}
	return appErrors.Wrap(detail, kind.Code, kind.Status, detail.Error())
}

func checkTimeField(errs *[]models.SessionFieldError, index int, field, value string) (int, bool) {
	if value == "" {
		*errs = append(*errs, fieldError(index, field, errKindStructural, field+" is required"))
		return 0, false
	}
	minute, err := parseMinute(value)
	if err != nil {
		*errs = append(*errs, fieldError(index, field, errKindStructural, fmt.Sprintf("malformed time %q, expected HH:MM", value)))
		return 0, false
	}
	return minute, true
}

func fieldError(index int, field, kind, message string) models.SessionFieldError {
	return models.SessionFieldError{Index: index, Field: field, Kind: kind, Message: message}
}

func wrapStructural(message string) error {
	return appErrors.Clone(appErrors.ErrStructural, message)
}

// toSessions converts validated inputs into persistence models, preserving
// order.
func toSessions(inputs []SessionInput) ([]models.Session, error) {
	sessions := make([]models.Session, 0, len(inputs))
	for _, in := range inputs {
		date, err := time.Parse(models.DateLayout, in.Date)
		if err != nil {
			return nil, wrapStructural(fmt.Sprintf("malformed date %q", in.Date))
		}
		sessions = append(sessions, models.Session{
			Date:       date,
			DateString: in.Date,
			StartTime:  in.StartTime,
			EndTime:    in.EndTime,
			Active:     in.IsActive(),
			Label:      in.Label,
		})
	}
	return sessions, nil
}
