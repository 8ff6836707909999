// Command materialctl drives material processing from the shell: it
// finalizes uploads in-process, queues them for the worker, and inspects job
// status and the knowledge index.
//
// finalize and search open the badger index directly, so they must not run
// next to a server that holds the same index directory.
package main

import (
	"log"
	"os"

	"github.com/urfave/cli/v2"
)

func main() {
	if err := newApp().Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func newApp() *cli.App {
	userFlag := &cli.StringFlag{
		Name:     "user",
		Aliases:  []string{"u"},
		Usage:    "Owner of the upload",
		Required: true,
	}
	uploadFlag := &cli.StringFlag{
		Name:     "upload",
		Usage:    "Upload session id",
		Required: true,
	}
	titleFlag := &cli.StringFlag{
		Name:  "title",
		Usage: "Material title, derived from the content when empty",
	}
	etagFlag := &cli.StringFlag{
		Name:  "etag",
		Usage: "ETag returned by the storage PUT",
	}

	return &cli.App{
		Name:  "materialctl",
		Usage: "Finalize uploads and inspect material processing",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to the JSON config file",
			},
		},
		Commands: []*cli.Command{
			{
				Name:   "finalize",
				Usage:  "Run the finalization saga synchronously",
				Action: finalizeCommand,
				Flags:  []cli.Flag{userFlag, uploadFlag, titleFlag, etagFlag},
			},
			{
				Name:   "submit",
				Usage:  "Queue an upload for background processing",
				Action: submitCommand,
				Flags:  []cli.Flag{userFlag, uploadFlag, titleFlag, etagFlag},
			},
			{
				Name:   "status",
				Usage:  "Show the status of a processing job",
				Action: statusCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "job",
						Aliases:  []string{"j"},
						Usage:    "Job id (the upload id)",
						Required: true,
					},
				},
			},
			{
				Name:   "search",
				Usage:  "Search a user's indexed materials",
				Action: searchCommand,
				Flags: []cli.Flag{
					userFlag,
					&cli.StringFlag{
						Name:     "query",
						Aliases:  []string{"q"},
						Usage:    "Search text",
						Required: true,
					},
					&cli.IntFlag{
						Name:  "limit",
						Usage: "Maximum number of hits",
						Value: 5,
					},
				},
			},
			{
				Name:   "presign",
				Usage:  "Create a presigned PUT URL for an object key, optionally uploading a file",
				Action: presignCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "key",
						Aliases:  []string{"k"},
						Usage:    "Object key",
						Required: true,
					},
					&cli.StringFlag{
						Name:  "type",
						Usage: "Content type of the upload",
						Value: "application/octet-stream",
					},
					&cli.StringFlag{
						Name:    "file",
						Aliases: []string{"f"},
						Usage:   "Upload this local file to the URL and print its ETag",
					},
				},
			},
		},
	}
}
