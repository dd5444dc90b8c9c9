package core

import (
	"strings"

	"github.com/spf13/pflag"
)

// Switches are the process startup arguments the fleet launcher passes to a
// game server process.
type Switches struct {
	Port int
	// Password is only meaningful if PasswordSet is true; an explicitly empty
	// password still overrides the configured one.
	Password    string
	PasswordSet bool
}

var engineSwitches = map[string]bool{
	"port":     true,
	"password": true,
}

// NormalizeSwitches rewrites launcher-style switches (port=7777, -port=7777)
// into the --name=value form understood by pflag. Everything else is passed
// through untouched.
func NormalizeSwitches(args []string) []string {
	normalized := make([]string, 0, len(args))
	for _, arg := range args {
		name, value, found := strings.Cut(strings.TrimLeft(arg, "-"), "=")
		if found && engineSwitches[strings.ToLower(name)] {
			arg = "--" + strings.ToLower(name) + "=" + value
		}
		normalized = append(normalized, arg)
	}
	return normalized
}

// RegisterSwitchFlags declares the port and password flags on fs.
func RegisterSwitchFlags(fs *pflag.FlagSet) {
	fs.Int("port", 0, "Port players connect on (overrides gateway.port)")
	fs.String("password", "", "Server password sent to the results API (overrides results.server_password)")
}

// SwitchesFromFlags reads back the flags declared by RegisterSwitchFlags.
func SwitchesFromFlags(fs *pflag.FlagSet) (Switches, error) {
	var s Switches
	var err error
	if s.Port, err = fs.GetInt("port"); err != nil {
		return s, err
	}
	if s.Password, err = fs.GetString("password"); err != nil {
		return s, err
	}
	s.PasswordSet = fs.Changed("password")
	return s, nil
}
