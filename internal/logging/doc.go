// Package logger provides leveled terminal logging for passgit commands.
//
// The logger supports multiple verbosity levels controlled by command-line
// flags. Output is formatted with semantic prefixes and colors.
//
// # Verbosity Levels
//
//   - --verbose: Shows info and warning messages
//   - --debug: Shows all messages including debug details and errors
//
// Without flags, only critical warnings are shown. Errors meant for the user
// are rendered by the command layer, not the logger.
//
// # Usage
//
//	log := Logger{Verbose: verbose, Debug: debug}
//	log.Infof("Opening session to %s", host)
//
// Commands create a logger in their PersistentPreRun and pass it to the
// workflows, transport and gitops packages.
package logger
