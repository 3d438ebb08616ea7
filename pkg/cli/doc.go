/*
Package cli provides helpers shared by the conduit commands.

Output Formatting:

Results render as text, JSON or CSV. Values implementing Tabular print as
aligned columns in text mode and as records in CSV mode:

	format, err := cli.ParseOutputFormat(flagValue)
	if err != nil {
		return err
	}
	table := cli.Table{Header: []string{"PROVIDER", "CIRCUIT"}, Records: rows}
	if err := cli.NewFormatter(format).FormatTo(os.Stdout, table); err != nil {
		return err
	}

Progress Reporting:

Batch commands such as cache warming report progress on stderr:

	progress := cli.NewProgressReporter(os.Stderr)
	progress.Start(int64(len(queries)))
	for _, q := range queries {
		_, err := run(q)
		progress.Done(err != nil)
	}
	progress.Finish()

Signal Handling:

SetupSignalHandler returns a context cancelled on SIGINT or SIGTERM.
WaitForReload delivers SIGHUP for configuration reloads.

Exit Codes:

ExitCode maps command errors to exit codes: 2 for configuration errors, 3
when a query could not be answered and 1 otherwise.
*/
package cli
