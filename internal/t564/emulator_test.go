// internal/t564/emulator_test.go
package t564

import (
	"bytes"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// deviceSim is a scripted stand-in for the instrument: it parses command
// frames the way the device would and produces delimiter-terminated
// replies plus the end marker. Reads are budgeted so a framing bug fails
// the test instead of hanging it.
type deviceSim struct {
	channels map[string]*simChannel
	regs     map[string]int // FA, FB, FC, TC, TS

	frameEngine []string // queue of FR query replies; empty means "OFF"
	commands    []string // every command seen, in order

	out        bytes.Buffer
	reads      int
	readBudget int

	// dropEndMarker simulates a device that truncates its reply batch.
	dropEndMarker bool
	// statusCommas inserts verbose-mode digit grouping into status lines.
	statusCommas bool
}

type simChannel struct {
	positive bool
	enabled  bool
	delayNS  float64
	widthNS  float64
}

func newDeviceSim() *deviceSim {
	sim := &deviceSim{
		channels:   make(map[string]*simChannel, 4),
		regs:       map[string]int{"FA": 0, "FB": 0, "FC": FrameForever, "TC": 0, "TS": 0},
		readBudget: 1 << 16,
	}
	for _, name := range []string{"A", "B", "C", "D"} {
		sim.channels[name] = &simChannel{positive: true}
	}
	return sim
}

func (d *deviceSim) Write(p []byte) (int, error) {
	frame := string(p)
	if !strings.HasSuffix(frame, delimiter+terminator) {
		return 0, fmt.Errorf("sim: frame %q not terminated", frame)
	}
	body := strings.TrimSuffix(frame, delimiter+terminator)
	for _, cmd := range strings.Split(body, delimiter) {
		d.commands = append(d.commands, cmd)
		d.out.WriteString(d.reply(cmd))
		d.out.WriteString(delimiter)
	}
	if !d.dropEndMarker {
		d.out.WriteString(endMarker)
	}
	return len(p), nil
}

func (d *deviceSim) Read(p []byte) (int, error) {
	d.reads++
	if d.reads > d.readBudget {
		return 0, fmt.Errorf("sim: read budget exhausted after %d reads", d.readBudget)
	}
	if d.out.Len() == 0 {
		return 0, io.EOF
	}
	b, _ := d.out.ReadByte()
	p[0] = b
	return 1, nil
}

// saw reports whether a command was transmitted at some point.
func (d *deviceSim) saw(cmd string) bool {
	for _, c := range d.commands {
		if c == cmd {
			return true
		}
	}
	return false
}

func (d *deviceSim) reply(cmd string) string {
	fields := strings.Fields(cmd)
	if len(fields) == 0 {
		return errorSentinel
	}
	keyword := strings.ToUpper(fields[0])

	switch keyword {
	case "VE", "TLEVEL", "FI", "SA", "RE", "STATUS":
		return "OK"
	case "AU":
		if len(fields) == 1 {
			return "1"
		}
		return "OK"
	case "SY":
		return "OK"
	case "TR":
		return "OK"
	case "CL":
		if len(fields) == 1 {
			return "INTERNAL"
		}
		return "OK"
	case "RZ":
		d.regs["FA"] = 0
		d.regs["FB"] = 0
		return "OK"
	case "FA", "FB", "FC", "TC", "TS":
		if len(fields) == 1 {
			return strconv.Itoa(d.regs[keyword])
		}
		v, err := strconv.Atoi(fields[1])
		if err != nil {
			return errorSentinel
		}
		d.regs[keyword] = v
		return "OK"
	case "FR":
		if len(fields) == 1 {
			if len(d.frameEngine) == 0 {
				return "OFF"
			}
			state := d.frameEngine[0]
			d.frameEngine = d.frameEngine[1:]
			return state
		}
		// FR GO, FR OF and FR <n> all acknowledge.
		return "OK"
	}

	// Per-channel commands: XS / XD / XW, X in A-D or the broadcast Q.
	if len(keyword) == 2 {
		name, op := keyword[:1], keyword[1:]
		targets := []*simChannel{d.channels[name]}
		if name == "Q" {
			targets = []*simChannel{d.channels["A"], d.channels["B"], d.channels["C"], d.channels["D"]}
		} else if targets[0] == nil {
			return errorSentinel
		}

		switch op {
		case "S":
			if len(fields) == 1 {
				if name == "Q" {
					return errorSentinel
				}
				return d.statusLine(name)
			}
			for _, ch := range targets {
				switch fields[1] {
				case "ON":
					ch.enabled = true
				case "OF":
					ch.enabled = false
				case "PO":
					ch.positive = true
				case "NE":
					ch.positive = false
				default:
					return errorSentinel
				}
			}
			return "OK"
		case "D", "W":
			if len(fields) != 2 {
				return errorSentinel
			}
			ns, err := strconv.ParseFloat(fields[1], 64)
			if err != nil || ns < 0 {
				return errorSentinel
			}
			for _, ch := range targets {
				if op == "D" {
					ch.delayNS = ns
				} else {
					ch.widthNS = ns
				}
			}
			return "OK"
		}
	}

	return errorSentinel
}

func (d *deviceSim) statusLine(name string) string {
	ch := d.channels[name]
	polarity := "POS"
	if !ch.positive {
		polarity = "NEG"
	}
	state := "OFF"
	if ch.enabled {
		state = "ON"
	}
	return fmt.Sprintf("Ch %s  %s  %s     Dly  %s  Wid  %s",
		name, polarity, state,
		d.formatSeconds(ch.delayNS*1e-9),
		d.formatSeconds(ch.widthNS*1e-9),
	)
}

// formatSeconds renders a status time field. Verbose mode groups the
// fractional digits with commas, e.g. 00.000,000,500,000.
func (d *deviceSim) formatSeconds(sec float64) string {
	plain := fmt.Sprintf("%015.12f", sec)
	if !d.statusCommas {
		return plain
	}
	intPart := plain[:2]
	frac := plain[3:]
	var groups []string
	for i := 0; i < len(frac); i += 3 {
		groups = append(groups, frac[i:i+3])
	}
	return intPart + "." + strings.Join(groups, ",")
}
