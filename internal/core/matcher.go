package core

import "github.com/printforge/dispatch/internal/db"

// Matcher decides whether a printer can service a job. Pure checks, no
// side effects; any single failing check rejects the pairing.
type Matcher struct {
	// RequireColorForMixed gates mixed-color jobs on color support. Off by
	// default: a mixed job may land on a mono printer, which then prints
	// the color pages in grayscale.
	RequireColorForMixed bool
}

func (m Matcher) CanHandle(p *db.Printer, req *PrintJobRequest) bool {
	opts := req.PrintingOptions

	if !p.Capabilities.SupportsPageSize(opts.PageSize) {
		return false
	}

	if m.needsColor(opts.Color) && !p.Capabilities.SupportsColor {
		return false
	}

	if opts.Sided == SidedDouble && !p.Capabilities.SupportsDuplex {
		return false
	}

	for _, ft := range req.fileTypes() {
		if !p.Capabilities.SupportsFileType(ft) {
			return false
		}
	}

	if opts.Copies > p.Capabilities.MaxCopies {
		return false
	}

	return true
}

func (m Matcher) needsColor(mode string) bool {
	if mode == ColorModeColor {
		return true
	}
	return mode == ColorModeMixed && m.RequireColorForMixed
}
