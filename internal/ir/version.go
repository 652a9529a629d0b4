package ir

// Version constants for the journal schema and the CLI.
const (
	// JournalVersion is the version of the records written to the journal.
	JournalVersion = "1"

	// CLIVersion is the azwait release version.
	CLIVersion = "0.1.0"
)
