package console

import (
	"sort"

	"github.com/cctvwall/cctvwall/core/streaminfo"
	"github.com/cctvwall/cctvwall/models"
)

// Unassigned groups cameras without a location.
const Unassigned = "Unassigned"

// LocationSummary is the per-location block of the overview.
type LocationSummary struct {
	Location string          `json:"location"`
	Total    int             `json:"total"`
	Online   int             `json:"online"`
	Offline  int             `json:"offline"`
	Cameras  []models.Camera `json:"cameras"`
}

// Overview counts cameras by reachability, grouped by location.
type Overview struct {
	Total     int               `json:"total"`
	Online    int               `json:"online"`
	Offline   int               `json:"offline"`
	Locations []LocationSummary `json:"locations"`
}

func matches(filter, value string) bool {
	return filter == "" || filter == streaminfo.AllFilter || filter == value
}

// Cameras returns the cameras matching location and nvr. An empty filter
// or "All" matches everything; nvr matches either the NVR name or its id.
func (c *Console) Cameras(location, nvr string) []models.Camera {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := []models.Camera{}
	for _, cam := range c.cameras {
		if !matches(location, cam.Location) {
			continue
		}
		if !matches(nvr, cam.NVR) && !matches(nvr, cam.NVRID) {
			continue
		}
		out = append(out, cam)
	}
	return out
}

// Locations returns the distinct camera locations, sorted.
func (c *Console) Locations() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	seen := map[string]bool{}
	out := []string{}
	for _, cam := range c.cameras {
		if cam.Location == "" || seen[cam.Location] {
			continue
		}
		seen[cam.Location] = true
		out = append(out, cam.Location)
	}
	sort.Strings(out)
	return out
}

// NVRs returns the distinct NVR names at location, sorted.
func (c *Console) NVRs(location string) []string {
	seen := map[string]bool{}
	out := []string{}
	for _, cam := range c.Cameras(location, "") {
		if cam.NVR == "" || seen[cam.NVR] {
			continue
		}
		seen[cam.NVR] = true
		out = append(out, cam.NVR)
	}
	sort.Strings(out)
	return out
}

// Overview summarises the catalogue.
func (c *Console) Overview() Overview {
	cameras := c.Cameras("", "")

	groups := map[string]*LocationSummary{}
	var ov Overview
	for _, cam := range cameras {
		loc := cam.Location
		if loc == "" {
			loc = Unassigned
		}
		g, ok := groups[loc]
		if !ok {
			g = &LocationSummary{Location: loc}
			groups[loc] = g
		}
		g.Total++
		g.Cameras = append(g.Cameras, cam)
		ov.Total++
		if cam.Status == models.CameraOnline {
			g.Online++
			ov.Online++
		} else {
			g.Offline++
			ov.Offline++
		}
	}

	ov.Locations = make([]LocationSummary, 0, len(groups))
	for _, g := range groups {
		ov.Locations = append(ov.Locations, *g)
	}
	sort.Slice(ov.Locations, func(i, j int) bool {
		return ov.Locations[i].Location < ov.Locations[j].Location
	})
	return ov
}
