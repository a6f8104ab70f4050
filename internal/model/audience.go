// internal/model/audience.go
package model

import (
	"fmt"
	"strings"
	"time"
)

type AudienceKind string

const (
	AudienceAll     AudienceKind = "all"
	AudienceSegment AudienceKind = "segment"
	AudienceCustom  AudienceKind = "custom"
)

// Audience is a tagged variant: Segment is meaningful only for
// AudienceSegment, UserIDs only for AudienceCustom.
type Audience struct {
	Kind    AudienceKind `json:"kind"`
	Segment string       `json:"segment,omitempty"`
	UserIDs []int64      `json:"user_ids,omitempty"`
}

func AllUsers() Audience { return Audience{Kind: AudienceAll} }

func SegmentOf(name string) Audience {
	return Audience{Kind: AudienceSegment, Segment: name}
}

func CustomList(ids ...int64) Audience {
	return Audience{Kind: AudienceCustom, UserIDs: ids}
}

// Normalize drops the payload fields that do not belong to Kind.
func (a Audience) Normalize() Audience {
	switch a.Kind {
	case AudienceAll:
		return Audience{Kind: AudienceAll}
	case AudienceSegment:
		return Audience{Kind: AudienceSegment, Segment: strings.TrimSpace(a.Segment)}
	case AudienceCustom:
		return Audience{Kind: AudienceCustom, UserIDs: a.UserIDs}
	}
	return a
}

func (a Audience) Validate() error {
	switch a.Kind {
	case AudienceAll:
		return nil
	case AudienceSegment:
		if strings.TrimSpace(a.Segment) == "" {
			return fmt.Errorf("segment audience requires a segment name")
		}
		return nil
	case AudienceCustom:
		if len(a.UserIDs) == 0 {
			return fmt.Errorf("custom audience requires at least one user")
		}
		return nil
	default:
		return fmt.Errorf("unknown audience kind %q", a.Kind)
	}
}

func (a Audience) String() string {
	switch a.Kind {
	case AudienceSegment:
		return "segment:" + a.Segment
	case AudienceCustom:
		return fmt.Sprintf("custom:%d", len(a.UserIDs))
	default:
		return string(a.Kind)
	}
}

// Segments understood by the user directory.
const (
	SegmentOptedIn = "opted_in"
	SegmentStaff   = "staff"
	SegmentRecent  = "recent"
)

// RecentWindow bounds the "recent" segment.
const RecentWindow = 30 * 24 * time.Hour

func KnownSegment(name string) bool {
	switch name {
	case SegmentOptedIn, SegmentStaff, SegmentRecent:
		return true
	}
	return false
}
