// Package config manages the hubsetup registry file.
//
// The registry is a YAML file that remembers every hub this machine has
// onboarded: its nickname, the network it joined and the address its API
// last answered on. It also holds the timing preferences used by the CLI.
//
// # Configuration File Location
//
//   - Linux: $XDG_CONFIG_HOME/hubsetup/config.yaml or $HOME/.config/hubsetup/config.yaml
//   - macOS: $HOME/.config/hubsetup/config.yaml
//   - Windows: %LOCALAPPDATA%\hubsetup\config.yaml
//
// # Security
//
// Wi-Fi passwords are never written to the registry. They are prompted
// for on every setup.
//
// # Usage Example
//
//	registry, err := config.LoadRegistry()
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	registry.RecordJoin("C4:7F:51:0A:22:9E", "HomeNet", "http://192.168.1.40/")
//	if err := registry.Save(); err != nil {
//	    log.Fatal(err)
//	}
//
// The global registry is loaded once per process. Save writes through a
// temporary file and a rename.
package config
