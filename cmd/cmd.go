// submodule cmd contains command definitions
package main

import "github.com/urfave/cli/v3"

func globalFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "config",
			Aliases: []string{"c"},
			Usage:   "Path to configuration file",
			Value:   "config.toml",
			Sources: cli.EnvVars("TRACKBRIDGE_CONFIG"),
		},
		&cli.StringFlag{
			Name:  "env",
			Usage: "Path to a dotenv file with client credentials",
			Value: ".env",
		},
		&cli.StringFlag{
			Name:  "session",
			Usage: "Session that owns tokens and transfers",
			Value: DefaultSession,
		},
		&cli.BoolFlag{
			Name:    "verbose",
			Aliases: []string{"v"},
			Usage:   "Enable debug logging",
		},
	}
}

// setupCommand handles setup operations for the database and configuration file.
func setupCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "setup",
		Usage: "Setup and configuration commands",
		Commands: []*cli.Command{
			{
				Name:   "database",
				Usage:  "Initialize database and run migrations",
				Action: r.SetupDatabase,
			},
			{
				Name:   "config",
				Usage:  "Write the default configuration file",
				Action: r.SetupConfig,
			},
			{
				Name:   "rollback",
				Usage:  "Roll back the most recent database migration",
				Action: r.SetupRollback,
			},
		},
	}
}

// authCommand connects platforms for the CLI session.
func authCommand(r *Runner) *cli.Command {
	platform := &cli.StringFlag{
		Name:     "platform",
		Aliases:  []string{"p"},
		Usage:    "Platform to connect (spotify or soundcloud)",
		Required: true,
	}

	return &cli.Command{
		Name:  "auth",
		Usage: "Manage platform authorization",
		Commands: []*cli.Command{
			{
				Name:   "login",
				Usage:  "Authorize a platform in the browser and store its token",
				Flags:  []cli.Flag{platform},
				Action: r.AuthLogin,
			},
			{
				Name:   "status",
				Usage:  "Show which platforms hold a usable token",
				Action: r.AuthStatus,
			},
			{
				Name:   "logout",
				Usage:  "Forget the stored token of a platform",
				Flags:  []cli.Flag{platform},
				Action: r.AuthLogout,
			},
		},
	}
}

// serveCommand runs the HTTP API.
func serveCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Serve the transfer and progress API",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "addr",
				Usage: "Listen address (defaults to server.host:server.port)",
			},
		},
		Action: r.Serve,
	}
}

// transferCommand handles playlist transfers.
func transferCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "transfer",
		Usage: "Transfer playlists between services",
		Commands: []*cli.Command{
			{
				Name:      "run",
				Usage:     "Recreate a playlist on the destination platform",
				ArgsUsage: "<playlist url>",
				Arguments: []cli.Argument{
					&cli.StringArg{Name: "url"},
				},
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "from",
						Usage: "Source platform",
						Value: "spotify",
					},
					&cli.StringFlag{
						Name:  "to",
						Usage: "Destination platform",
						Value: "soundcloud",
					},
					&cli.StringFlag{
						Name:    "file",
						Aliases: []string{"f"},
						Usage:   "Read the track list from a text export instead of the source platform",
					},
					&cli.StringFlag{
						Name:  "name",
						Usage: "Playlist name when reading from --file",
					},
					&cli.BoolFlag{
						Name:  "tui",
						Usage: "Show an interactive progress view",
					},
					&cli.BoolFlag{
						Name:  "json",
						Usage: "Print the finished job as JSON",
					},
				},
				Action: r.TransferRun,
			},
			{
				Name:  "history",
				Usage: "List recent transfers",
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:  "limit",
						Usage: "Maximum number of transfers to list",
						Value: 10,
					},
					&cli.StringFlag{
						Name:  "status",
						Usage: "Only list transfers with this status",
					},
					&cli.BoolFlag{
						Name:  "json",
						Usage: "Output raw JSON",
					},
				},
				Action: r.TransferHistory,
			},
			{
				Name:  "ui",
				Usage: "Pick a playlist and transfer it interactively",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "from",
						Usage: "Source platform",
						Value: "spotify",
					},
					&cli.StringFlag{
						Name:  "to",
						Usage: "Destination platform",
						Value: "soundcloud",
					},
				},
				Action: r.TUI,
			},
		},
	}
}

// playlistsCommand lists the session's playlists.
func playlistsCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "playlists",
		Usage: "List playlists on a platform",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "platform",
				Aliases: []string{"p"},
				Usage:   "Platform to list",
				Value:   "spotify",
			},
			&cli.IntFlag{
				Name:  "limit",
				Usage: "Maximum number of playlists to return",
				Value: 50,
			},
			&cli.BoolFlag{
				Name:  "json",
				Usage: "Output raw JSON",
			},
			&cli.BoolFlag{
				Name:  "pretty",
				Usage: "Pretty-print output",
			},
		},
		Action: r.Playlists,
	}
}

// exportCommand writes playlists to files.
func exportCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:      "export",
		Usage:     "Export playlists as csv, markdown, json or txt",
		ArgsUsage: "[playlist url or id...]",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "platform",
				Aliases: []string{"p"},
				Usage:   "Platform to export from",
				Value:   "spotify",
			},
			&cli.StringFlag{
				Name:  "format",
				Usage: "Output format (csv, markdown, json or txt)",
				Value: "txt",
			},
			&cli.StringFlag{
				Name:    "output",
				Aliases: []string{"o"},
				Usage:   "Output directory",
				Value:   "exports",
			},
			&cli.BoolFlag{
				Name:  "all",
				Usage: "Export every playlist of the account",
			},
			&cli.IntFlag{
				Name:  "workers",
				Usage: "Number of concurrent file writers",
				Value: 3,
			},
			&cli.Float64Flag{
				Name:  "rate",
				Usage: "Playlist fetches per second",
				Value: 2,
			},
		},
		Action: r.Export,
	}
}

// searchCommand resolves a single track.
func searchCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:      "search",
		Usage:     "Find the best match for a track on a platform",
		ArgsUsage: "<\"Title - Artist\">",
		Arguments: []cli.Argument{
			&cli.StringArg{Name: "query"},
		},
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "platform",
				Aliases: []string{"p"},
				Usage:   "Platform to search",
				Value:   "soundcloud",
			},
			&cli.BoolFlag{
				Name:  "json",
				Usage: "Output raw JSON",
			},
		},
		Action: r.Search,
	}
}
