package models

// Filter narrows the set of items a sync or restore considers eligible.
// All populated fields must match (AND); an empty field is unconstrained.
type Filter struct {
	QualityProfiles []int
	RootFolders     []string
	Tags            []string
	MinYear         int
}

// Empty reports whether the filter constrains nothing
func (f Filter) Empty() bool {
	return len(f.QualityProfiles) == 0 && len(f.RootFolders) == 0 &&
		len(f.Tags) == 0 && f.MinYear == 0
}

// Matches reports whether the item passes every populated constraint.
// The tag constraint matches when the item shares at least one tag with
// the filter.
func (f Filter) Matches(item MediaItem) bool {
	if len(f.QualityProfiles) > 0 {
		found := false
		for _, id := range f.QualityProfiles {
			if item.QualityProfileID == id {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}

	if len(f.RootFolders) > 0 {
		found := false
		for _, folder := range f.RootFolders {
			if item.RootFolder == folder {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}

	if len(f.Tags) > 0 {
		found := false
		for _, tag := range f.Tags {
			if item.HasTag(tag) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}

	if f.MinYear > 0 && item.Year < f.MinYear {
		return false
	}

	return true
}

// Apply returns the items that pass the filter
func (f Filter) Apply(items []MediaItem) []MediaItem {
	if f.Empty() {
		return items
	}
	var out []MediaItem
	for _, item := range items {
		if f.Matches(item) {
			out = append(out, item)
		}
	}
	return out
}
