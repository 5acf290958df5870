// Package gdpull copies the contents of a Google Drive folder to a local
// directory or an S3 prefix.
//
// Google Workspace documents are exported to interchange formats (Docs to
// .docx, Sheets to .xlsx, Slides to .pptx, Drawings to .png); other native
// types are skipped and regular files are downloaded as is. Only the direct
// children of the folder are pulled.
//
// # Architecture
//
//   - [FolderResolver]: Turns a folder id or name into a [FolderRef], asking a [Chooser] on ambiguity
//   - [DriveClient]: Drive API v3 calls (list, get, download, export)
//   - [Materializer]: Copies one file into a [Sink]
//   - [Puller]: Drives a pull and reports progress to an [Observer]
//   - [App]: Wires the above for the CLI, the HTTP server and AWS Lambda
//
// # Usage
//
// For CLI usage, create a [CLI] instance and call Run:
//
//	var cli gdpull.CLI
//	ctx := context.Background()
//	exitCode := cli.Run(ctx)
//
// For programmatic usage, create an [App] instance:
//
//	opts, _ := gdpull.NewAuthenticator(credentialsOption, os.Stderr).ClientOptions(ctx)
//	app, _ := gdpull.New(gdpull.AppOption{}, gdpull.LogObserver{}, opts...)
//	defer app.Close()
//	result, err := app.Pull(ctx, "Reports", gdpull.NewLocalSink("./downloads"))
//
// Ambiguous folder names fail with [*AmbiguousFolderError] unless a chooser
// is installed with [App.SetChooser].
//
// # Events
//
// Progress events are typed in [github.com/mashiike/gdpull/pkg/pullevent] and can be
// delivered to a log, a local NDJSON file or Amazon EventBridge.
package gdpull
