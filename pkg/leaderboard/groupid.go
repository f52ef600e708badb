package leaderboard

import (
	"strings"

	"github.com/despreadlabs/leaderboard-collector/pkg/notion"
)

type groupIDCandidate struct {
	field string
	kind  notion.PropertyType
}

// groupIDCandidates lists, in priority order, where a project's group identifier may live.
// The database has been edited by hand over time, so the same logical column shows up under
// several names and property kinds.
var groupIDCandidates = []groupIDCandidate{
	{field: "GroupID", kind: notion.PropertyTypeNumber},
	{field: "GroupID", kind: notion.PropertyTypeRichText},
	{field: "GroupID", kind: notion.PropertyTypeTitle},
	{field: "Group ID", kind: notion.PropertyTypeNumber},
	{field: "Group ID", kind: notion.PropertyTypeRichText},
	{field: "Group ID", kind: notion.PropertyTypeTitle},
	{field: "그룹ID", kind: notion.PropertyTypeNumber},
	{field: "그룹ID", kind: notion.PropertyTypeRichText},
	{field: "그룹ID", kind: notion.PropertyTypeTitle},
}

// ResolveGroupID returns the first usable group identifier found among the candidates.
// Identifiers end up as a single segment of storage keys, so values that are empty or
// could address another path are passed over.
func ResolveGroupID(properties map[string]notion.Property) (string, bool) {
	for _, candidate := range groupIDCandidates {
		property, ok := properties[candidate.field]
		if !ok {
			continue
		}
		if value, ok := valueOf(property, candidate.kind); ok && isPathSegment(value) {
			return value, true
		}
	}
	return "", false
}

func isPathSegment(value string) bool {
	return value != "." && value != ".." && !strings.ContainsAny(value, `/\`)
}

func valueOf(property notion.Property, kind notion.PropertyType) (string, bool) {
	switch kind {
	case notion.PropertyTypeNumber:
		return property.NumberValue()
	case notion.PropertyTypeRichText:
		return property.RichTextValue()
	case notion.PropertyTypeTitle:
		return property.TitleValue()
	default:
		return "", false
	}
}
