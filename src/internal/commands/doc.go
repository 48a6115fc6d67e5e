// Package commands implements CLI command handlers for keen-dns.
//
// Each subcommand implements the Runner interface:
//   - Init(): Parse arguments and load configuration
//   - Run(): Execute the command
//   - Name(): Return command name for routing
//
// # Available Commands
//
//   - service: Run the DNS proxy with query tracking, traffic redirection and the API
//   - redirect: Insert ("begin") or remove ("end") the DNS redirect rules once
//   - queries: Print recently persisted queries
//   - init-config: Write a configuration file with default values
package commands
