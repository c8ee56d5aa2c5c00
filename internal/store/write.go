package store

import (
	"context"
	"fmt"
	"strconv"
	"strings"
)

// AssertionRecord is one row of the assertion log.
// Pointer fields are nullable columns.
type AssertionRecord struct {
	AssertionID     string
	ClaimType       string
	ClaimContent    string
	SubjectID       string
	ObjectID        *string
	AssertedAt      string
	ValidFrom       *string
	ValidUntil      *string
	FrameID         string
	FrameVersion    string
	SourceID        *string
	GroundingRef    *string
	Certainty       *float64
	Method          *string
	VisibilityScope string
	AssertionMode   string
}

// EntityRecord is a known entity the expectation machinery can range over.
type EntityRecord struct {
	EntityID   string
	EntityType string
	Label      string
}

// SourceRecord describes where assertions come from.
type SourceRecord struct {
	SourceID    string
	SourceType  string
	Label       string
	Reliability *float64
}

// ExpectationRow is the stored form of an expectation rule. Rule fields are
// real columns so compiled plans can join on them without JSON functions.
type ExpectationRow struct {
	ExpectationID    string
	Version          string
	Description      string
	EntityFilterType *string
	ClaimType        string
	Frequency        string
	DeadlineHours    *int
	ActiveFrom       *string
	ActiveUntil      *string
}

// FrameRow is the stored form of a frame definition.
type FrameRow struct {
	FrameID     string
	Version     string
	Description string
	ConfigJSON  string
	CreatedAt   string
}

// bind rewrites ? placeholders for the active driver. SQLite takes them as
// written; Postgres wants $1..$n.
func (s *Store) bind(q string) string {
	if s.driver != DriverPostgres {
		return q
	}
	var b strings.Builder
	n := 0
	for _, r := range q {
		if r == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// AppendAssertion appends one assertion to the log. There is no update
// counterpart: corrections are new assertions that ground on the old one.
func (s *Store) AppendAssertion(ctx context.Context, rec AssertionRecord) error {
	if rec.AssertionID == "" || rec.ClaimType == "" || rec.SubjectID == "" {
		return fmt.Errorf("assertion requires assertion_id, claim_type, subject_id")
	}
	if rec.AssertedAt == "" {
		return fmt.Errorf("assertion requires asserted_at")
	}
	if rec.FrameID == "" {
		return fmt.Errorf("assertion requires frame_id")
	}
	if rec.FrameVersion == "" {
		rec.FrameVersion = "latest"
	}
	if rec.VisibilityScope == "" {
		rec.VisibilityScope = "visible"
	}
	if rec.AssertionMode == "" {
		rec.AssertionMode = "direct"
	}

	_, err := s.db.ExecContext(ctx, s.bind(`
		INSERT INTO assertions (
			assertion_id, claim_type, claim_content, subject_id, object_id,
			asserted_at, valid_from, valid_until, frame_id, frame_version,
			source_id, grounding_ref, certainty, method,
			visibility_scope, assertion_mode
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		rec.AssertionID, rec.ClaimType, rec.ClaimContent, rec.SubjectID, rec.ObjectID,
		rec.AssertedAt, rec.ValidFrom, rec.ValidUntil, rec.FrameID, rec.FrameVersion,
		rec.SourceID, rec.GroundingRef, rec.Certainty, rec.Method,
		rec.VisibilityScope, rec.AssertionMode,
	)
	if err != nil {
		return fmt.Errorf("append assertion %s: %w", rec.AssertionID, err)
	}
	return nil
}

// PutEntity registers or updates an entity.
func (s *Store) PutEntity(ctx context.Context, rec EntityRecord) error {
	_, err := s.db.ExecContext(ctx, s.bind(`
		INSERT INTO entities (entity_id, entity_type, label)
		VALUES (?, ?, ?)
		ON CONFLICT (entity_id) DO UPDATE SET
			entity_type = excluded.entity_type,
			label = excluded.label`),
		rec.EntityID, rec.EntityType, rec.Label,
	)
	if err != nil {
		return fmt.Errorf("put entity %s: %w", rec.EntityID, err)
	}
	return nil
}

// PutSource registers or updates a source.
func (s *Store) PutSource(ctx context.Context, rec SourceRecord) error {
	_, err := s.db.ExecContext(ctx, s.bind(`
		INSERT INTO sources (source_id, source_type, label, reliability)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (source_id) DO UPDATE SET
			source_type = excluded.source_type,
			label = excluded.label,
			reliability = excluded.reliability`),
		rec.SourceID, rec.SourceType, rec.Label, rec.Reliability,
	)
	if err != nil {
		return fmt.Errorf("put source %s: %w", rec.SourceID, err)
	}
	return nil
}

// PutFrame stores a frame version.
func (s *Store) PutFrame(ctx context.Context, rec FrameRow) error {
	_, err := s.db.ExecContext(ctx, s.bind(`
		INSERT INTO frames (frame_id, version, description, config_json, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (frame_id, version) DO NOTHING`),
		rec.FrameID, rec.Version, rec.Description, rec.ConfigJSON, rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("put frame %s@%s: %w", rec.FrameID, rec.Version, err)
	}
	return nil
}

// PutExpectation stores an expectation version and refreshes the 'latest'
// alias row. Plans that reference an unversioned expectation join on the
// alias, so it must always point at the newest registration.
func (s *Store) PutExpectation(ctx context.Context, rec ExpectationRow) error {
	insert := s.bind(`
		INSERT INTO expectations (
			expectation_id, version, description, entity_filter_type,
			claim_type, frequency, deadline_hours, active_from, active_until
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (expectation_id, version) DO UPDATE SET
			description = excluded.description,
			entity_filter_type = excluded.entity_filter_type,
			claim_type = excluded.claim_type,
			frequency = excluded.frequency,
			deadline_hours = excluded.deadline_hours,
			active_from = excluded.active_from,
			active_until = excluded.active_until`)

	for _, version := range []string{rec.Version, "latest"} {
		if _, err := s.db.ExecContext(ctx, insert,
			rec.ExpectationID, version, rec.Description, rec.EntityFilterType,
			rec.ClaimType, rec.Frequency, rec.DeadlineHours,
			rec.ActiveFrom, rec.ActiveUntil,
		); err != nil {
			return fmt.Errorf("put expectation %s@%s: %w", rec.ExpectationID, version, err)
		}
	}
	return nil
}

// LinkGrounding records that the link's target is grounded by its ground.
func (s *Store) LinkGrounding(ctx context.Context, link GroundingLink) error {
	_, err := s.db.ExecContext(ctx, s.bind(`
		INSERT INTO grounding_links (target_id, grounded_by_id, link_kind, strength)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (target_id, grounded_by_id) DO NOTHING`),
		link.TargetID, link.GroundedByID, link.LinkKind, link.Strength,
	)
	if err != nil {
		return fmt.Errorf("link grounding %s -> %s: %w", link.TargetID, link.GroundedByID, err)
	}
	return nil
}

// SetVisibilityScope changes the one mutable column of an assertion. Scope
// is about who may see a record, not whether it happened; the assertion
// itself stays in the log untouched.
func (s *Store) SetVisibilityScope(ctx context.Context, assertionID, scope string) error {
	if scope == "" {
		return fmt.Errorf("visibility scope must be non-empty")
	}
	res, err := s.db.ExecContext(ctx, s.bind(`
		UPDATE assertions SET visibility_scope = ? WHERE assertion_id = ?`),
		scope, assertionID,
	)
	if err != nil {
		return fmt.Errorf("set visibility scope for %s: %w", assertionID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("assertion not found: %s", assertionID)
	}
	return nil
}
