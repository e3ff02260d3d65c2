package meter

import "fmt"

// signature is one entry of the classification table. The description may
// contain a single %s verb which is substituted with the formatted bus
// voltage at match time.
type signature struct {
	name        string
	mode        string // empty means "use formatted bus voltage"
	version     string
	description string
	match       func(v, dp, dn float64) bool
}

func between(x, lo, hi float64) bool {
	return x >= lo && x <= hi
}

// signatures is evaluated strictly top to bottom and the first match wins.
// The order is part of the classifier contract, not an accident of
// construction: D+/D- bands legitimately overlap between entries. The
// broad Quick Charge 3.0 window sits before AFC, Apple and DCP, so any
// D+/D- activity on a 3.6-12V bus resolves as QC 3.0; Apple and DCP only
// match at bus voltages outside that window. Do not reorder without
// conformance testing.
var signatures = []signature{
	{"USB-PD", "9V", "2.0/3.0", "USB Power Delivery 9V",
		func(v, dp, dn float64) bool { return between(v, 8.5, 9.5) }},
	{"USB-PD", "12V", "2.0/3.0", "USB Power Delivery 12V",
		func(v, dp, dn float64) bool { return between(v, 11.5, 12.5) }},
	{"USB-PD", "15V", "2.0/3.0", "USB Power Delivery 15V",
		func(v, dp, dn float64) bool { return between(v, 14.5, 15.5) }},
	{"USB-PD", "20V", "3.0", "USB Power Delivery 20V",
		func(v, dp, dn float64) bool { return between(v, 19.5, 20.5) }},

	{"QC 2.0", "5V", "2.0", "Qualcomm Quick Charge 2.0 (5V)",
		func(v, dp, dn float64) bool { return between(dp, 0.25, 0.35) && between(dn, 0.25, 0.35) }},
	{"QC 2.0", "9V", "2.0", "Qualcomm Quick Charge 2.0 (9V)",
		func(v, dp, dn float64) bool { return between(dp, 0.55, 0.65) && between(dn, 0.25, 0.35) }},
	{"QC 2.0", "12V", "2.0", "Qualcomm Quick Charge 2.0 (12V)",
		func(v, dp, dn float64) bool { return between(dp, 0.55, 0.65) && between(dn, 0.55, 0.65) }},

	{"QC 3.0", "", "3.0", "Qualcomm Quick Charge 3.0 (%s)",
		func(v, dp, dn float64) bool { return (dp > 0.3 || dn > 0.3) && between(v, 3.6, 12.0) }},
	{"AFC", "9V", "1.0", "Samsung Adaptive Fast Charging",
		func(v, dp, dn float64) bool { return between(v, 8.5, 9.5) && (dp > 0.4 || dn > 0.4) }},

	{"Apple 2.4A", "5V/2.4A", "1.0", "Apple 2.4A Charging",
		func(v, dp, dn float64) bool { return between(dp, 2.5, 2.9) && between(dn, 2.5, 2.9) }},
	{"DCP", "5V", "1.2", "USB Battery Charging 1.2 DCP",
		func(v, dp, dn float64) bool { return abs(dp-dn) < 0.1 && between(dp, 1.8, 2.2) }},

	{"Standard USB", "5V", "2.0/3.0", "Standard USB 5V",
		func(v, dp, dn float64) bool { return between(v, 4.5, 5.5) }},
}

func abs(x float64) float64 {
	if x < 0 {
		return -x
	}
	return x
}

// Classify maps a (bus voltage, D+, D-) triple to a charging protocol.
// It is total: any input, including out-of-range garbage, yields a
// Protocol, falling back to "Unknown". The function is stateless and safe
// for concurrent use.
func Classify(voltage, dp, dn float64) Protocol {
	vs := fmt.Sprintf("%.1fV", voltage)
	for _, s := range signatures {
		if !s.match(voltage, dp, dn) {
			continue
		}

		p := Protocol{
			Name:        s.name,
			Mode:        s.mode,
			Version:     s.version,
			Description: s.description,
		}
		if p.Mode == "" {
			p.Mode = vs
		}
		if s.name == "QC 3.0" {
			p.Description = fmt.Sprintf(s.description, vs)
		}
		return p
	}

	return Protocol{
		Name:        "Unknown",
		Mode:        vs,
		Version:     "N/A",
		Description: fmt.Sprintf("Unknown Protocol (%s)", vs),
	}
}
