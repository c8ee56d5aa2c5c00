package store

import (
	"context"
	"fmt"
)

// GroundingLink is one provenance edge. Strength, when recorded, weights
// how firmly the target rests on this ground.
type GroundingLink struct {
	TargetID     string
	GroundedByID string
	LinkKind     string
	Strength     *float64
}

// ReadAssertions returns the full log in asserted_at order. Replay order is
// deterministic: ties on the timestamp break on assertion_id.
func (s *Store) ReadAssertions(ctx context.Context) ([]AssertionRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT assertion_id, claim_type, claim_content, subject_id, object_id,
		       asserted_at, valid_from, valid_until, frame_id, frame_version,
		       source_id, grounding_ref, certainty, method,
		       visibility_scope, assertion_mode
		FROM assertions
		ORDER BY asserted_at, assertion_id`)
	if err != nil {
		return nil, fmt.Errorf("read assertions: %w", err)
	}
	defer rows.Close()

	var out []AssertionRecord
	for rows.Next() {
		var rec AssertionRecord
		var content *string
		if err := rows.Scan(
			&rec.AssertionID, &rec.ClaimType, &content, &rec.SubjectID, &rec.ObjectID,
			&rec.AssertedAt, &rec.ValidFrom, &rec.ValidUntil, &rec.FrameID, &rec.FrameVersion,
			&rec.SourceID, &rec.GroundingRef, &rec.Certainty, &rec.Method,
			&rec.VisibilityScope, &rec.AssertionMode,
		); err != nil {
			return nil, fmt.Errorf("scan assertion: %w", err)
		}
		if content != nil {
			rec.ClaimContent = *content
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// ReadGroundingLinks returns all provenance edges.
func (s *Store) ReadGroundingLinks(ctx context.Context) ([]GroundingLink, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT target_id, grounded_by_id, link_kind, strength
		FROM grounding_links
		ORDER BY target_id, grounded_by_id`)
	if err != nil {
		return nil, fmt.Errorf("read grounding links: %w", err)
	}
	defer rows.Close()

	var out []GroundingLink
	for rows.Next() {
		var link GroundingLink
		var kind *string
		if err := rows.Scan(&link.TargetID, &link.GroundedByID, &kind, &link.Strength); err != nil {
			return nil, fmt.Errorf("scan grounding link: %w", err)
		}
		if kind != nil {
			link.LinkKind = *kind
		}
		out = append(out, link)
	}
	return out, rows.Err()
}

// ReadEntities returns all registered entities.
func (s *Store) ReadEntities(ctx context.Context) ([]EntityRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT entity_id, entity_type, label
		FROM entities
		ORDER BY entity_id`)
	if err != nil {
		return nil, fmt.Errorf("read entities: %w", err)
	}
	defer rows.Close()

	var out []EntityRecord
	for rows.Next() {
		var rec EntityRecord
		var label *string
		if err := rows.Scan(&rec.EntityID, &rec.EntityType, &label); err != nil {
			return nil, fmt.Errorf("scan entity: %w", err)
		}
		if label != nil {
			rec.Label = *label
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// ReadExpectations returns stored expectation rows, excluding the 'latest'
// alias rows.
func (s *Store) ReadExpectations(ctx context.Context) ([]ExpectationRow, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT expectation_id, version, description, entity_filter_type,
		       claim_type, frequency, deadline_hours, active_from, active_until
		FROM expectations
		WHERE version != 'latest'
		ORDER BY expectation_id, version`)
	if err != nil {
		return nil, fmt.Errorf("read expectations: %w", err)
	}
	defer rows.Close()

	var out []ExpectationRow
	for rows.Next() {
		var rec ExpectationRow
		var desc *string
		if err := rows.Scan(
			&rec.ExpectationID, &rec.Version, &desc, &rec.EntityFilterType,
			&rec.ClaimType, &rec.Frequency, &rec.DeadlineHours,
			&rec.ActiveFrom, &rec.ActiveUntil,
		); err != nil {
			return nil, fmt.Errorf("scan expectation: %w", err)
		}
		if desc != nil {
			rec.Description = *desc
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}
