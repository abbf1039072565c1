// Package preflight provides startup connectivity checks. The test run
// fails fast with a clear message when the server is unreachable,
// instead of burning the retry budget on the first measurement.
package preflight

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"time"
)

// checkTimeout bounds each individual check.
const checkTimeout = 5 * time.Second

// Check represents the result of a single preflight check.
type Check struct {
	Name       string  // Name of the check
	Passed     bool    // Whether the check passed
	Warning    bool    // True if it's a warning (non-fatal)
	DurationMs float64 // How long the check took
	Message    string  // Additional context
}

// Result holds the results of all preflight checks.
type Result struct {
	Checks []Check
	Passed bool
}

// String returns a human-readable summary of the check.
func (c Check) String() string {
	status := "✓"
	if !c.Passed {
		status = "✗"
	} else if c.Warning {
		status = "⚠"
	}

	return fmt.Sprintf("  %s %s: %s", status, c.Name, c.Message)
}

// RunAll executes all preflight checks against the test server.
func RunAll(ctx context.Context, host string, port int) *Result {
	result := &Result{
		Checks: make([]Check, 0, 2),
		Passed: true,
	}

	dnsCheck, ips := checkDNS(ctx, host)
	result.Checks = append(result.Checks, dnsCheck)
	if !dnsCheck.Passed {
		result.Passed = false
		// No address to connect to, skip the TCP check.
		return result
	}

	tcpCheck := checkTCPConnect(ctx, ips[0], port)
	result.Checks = append(result.Checks, tcpCheck)
	if !tcpCheck.Passed {
		result.Passed = false
	}

	return result
}

// checkDNS verifies the server hostname resolves.
func checkDNS(ctx context.Context, host string) (Check, []net.IP) {
	ctx, cancel := context.WithTimeout(ctx, checkTimeout)
	defer cancel()

	start := time.Now()
	addrs, err := net.DefaultResolver.LookupIPAddr(ctx, host)
	elapsed := time.Since(start)

	if err != nil {
		return Check{
			Name:       "dns",
			Passed:     false,
			DurationMs: float64(elapsed.Milliseconds()),
			Message:    fmt.Sprintf("cannot resolve %s: %v", host, err),
		}, nil
	}

	ips := make([]net.IP, 0, len(addrs))
	for _, addr := range addrs {
		if v4 := addr.IP.To4(); v4 != nil {
			ips = append(ips, v4)
		}
	}
	for _, addr := range addrs {
		if addr.IP.To4() == nil {
			ips = append(ips, addr.IP)
		}
	}

	return Check{
		Name:       "dns",
		Passed:     true,
		DurationMs: float64(elapsed.Milliseconds()),
		Message:    fmt.Sprintf("%s resolves to %s (%d addresses, %v)", host, ips[0], len(ips), elapsed.Round(time.Millisecond)),
	}, ips
}

// checkTCPConnect verifies a TCP connection to the server succeeds.
func checkTCPConnect(ctx context.Context, ip net.IP, port int) Check {
	ctx, cancel := context.WithTimeout(ctx, checkTimeout)
	defer cancel()

	addr := net.JoinHostPort(ip.String(), strconv.Itoa(port))

	start := time.Now()
	var dialer net.Dialer
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	elapsed := time.Since(start)

	if err != nil {
		return Check{
			Name:       "tcp_connect",
			Passed:     false,
			DurationMs: float64(elapsed.Milliseconds()),
			Message:    fmt.Sprintf("cannot connect to %s: %v", addr, err),
		}
	}
	conn.Close()

	check := Check{
		Name:       "tcp_connect",
		Passed:     true,
		DurationMs: float64(elapsed.Milliseconds()),
		Message:    fmt.Sprintf("connected to %s in %v", addr, elapsed.Round(time.Millisecond)),
	}

	// A sluggish handshake is worth flagging before the test starts.
	if elapsed > time.Second {
		check.Warning = true
		check.Message += " (slow)"
	}

	return check
}

// PrintResults prints the preflight check results to stdout.
func PrintResults(result *Result) {
	fmt.Println("Preflight checks:")
	for _, check := range result.Checks {
		fmt.Println(check.String())
		if !check.Passed {
			fmt.Printf("    Fix: %s\n", suggestFix(check.Name))
		}
	}
	fmt.Println()
}

// suggestFix returns a suggestion for fixing a failed check.
func suggestFix(name string) string {
	switch name {
	case "dns":
		return "check your DNS resolver and network connection"
	case "tcp_connect":
		return "check firewall rules, proxies, or try a different network"
	default:
		return "see documentation"
	}
}
