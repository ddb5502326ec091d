package cli

import (
	"strconv"

	"coursedl/pkg/config"
)

// listingFlags select the page and how resources are read from it.
func listingFlags(def config.Config) []*Flag {
	return []*Flag{
		{Name: "url", Short: "u", Type: "string", Desc: "Page listing the resources", Default: def.URL},
		{Name: "selector", Type: "string", Desc: "CSS selector of the list items", Default: def.Listing.Selector},
		{Name: "jq", Type: "string", Desc: "jq query over a JSON listing, yields {title, url} objects"},
		{Name: "recipe", Type: "string", Desc: "Starlark recipe file defining list(page)"},
		{Name: "no-cache", Type: "bool", Desc: "Do not read or write the listing cache"},
		{Name: "timeout", Short: "T", Type: "string", Desc: "Network timeout in seconds", Default: strconv.Itoa(int(def.Timeout.Seconds()))},
		{Name: "download-path", Short: "d", Type: "string", Desc: "Destination directory", Default: def.DownloadDir},
	}
}

// downloadFlags are listingFlags plus the transfer settings.
func downloadFlags(def config.Config) []*Flag {
	return append(listingFlags(def),
		&Flag{Name: "threads", Short: "t", Type: "string", Desc: "Maximum simultaneous downloads", Default: strconv.Itoa(def.Workers)},
		&Flag{Name: "chunk-size", Short: "c", Type: "string", Desc: "Read buffer size in bytes (8192, 64KiB)", Default: strconv.FormatInt(def.ChunkSize, 10)},
		&Flag{Name: "max-retries", Short: "r", Type: "string", Desc: "Attempts per resource before giving up", Default: strconv.Itoa(def.Retry.Attempts)},
		&Flag{Name: "retry-delay", Short: "R", Type: "string", Desc: "Seconds between attempts", Default: strconv.Itoa(int(def.Retry.Delay.Seconds()))},
		&Flag{Name: "ui", Type: "string", Desc: "Progress display: auto, tui, plain, none", Default: def.UI},
		&Flag{Name: "extract", Type: "bool", Desc: "Unpack archives after download"},
		&Flag{Name: "strict-resume", Type: "bool", Desc: "Restart partial files the server does not resume"},
	)
}

// MakeEngine declares the coursedl command line and binds it to h.
func MakeEngine(h *Handlers) *Engine {
	def := config.Default()

	e := NewEngine(config.AppName, "Resumable course downloader")
	e.Default = "download"
	e.GlobalFlags = []*Flag{
		{Name: "verbose", Short: "v", Type: "bool", Desc: "Enable debug logging"},
		{Name: "config", Type: "string", Desc: "YAML config file (default: " + config.DefaultConfigFile() + ")"},
		{Name: "version", Type: "bool", Desc: "Print version and exit"},
	}

	e.AddCommand(&Command{
		Name:  "download",
		Desc:  "Download every resource listed on the page",
		Flags: downloadFlags(def),
		Examples: []string{
			"coursedl",
			"coursedl -d ~/courses -t 8 --max-retries 5",
			"coursedl download --url https://example.com/api/courses --jq '.items[] | {title: .name, url: .zip}'",
		},
	})
	e.AddCommand(&Command{
		Name:  "list",
		Desc:  "Show the resources found on the page without downloading",
		Flags: listingFlags(def),
		Examples: []string{
			"coursedl list",
			"coursedl list --selector 'ul.courses > li'",
		},
	})
	e.AddCommand(&Command{
		Name: "recipe",
		Desc: "Interactive shell to try a listing recipe",
		Args: []*Arg{
			{Name: "file", Type: "string", Desc: "Starlark recipe file"},
		},
		Flags: []*Flag{
			{Name: "url", Short: "u", Type: "string", Desc: "Page passed to list(page)", Default: def.URL},
			{Name: "timeout", Short: "T", Type: "string", Desc: "Network timeout in seconds", Default: strconv.Itoa(int(def.Timeout.Seconds()))},
		},
		Examples: []string{"coursedl recipe courses.star --url https://example.com/"},
	})
	e.AddCommand(&Command{
		Name: "version",
		Desc: "Print build information",
	})

	e.Topics = []*Topic{
		{
			Name: "config",
			Desc: "Config file, environment and precedence",
			Text: configTopic,
		},
		{
			Name: "recipes",
			Desc: "Writing a Starlark listing recipe",
			Text: recipeTopic,
		},
		{
			Name: "exit-codes",
			Desc: "Process exit status",
			Text: exitCodesTopic,
		},
	}

	e.Register("download", HandlerFunc(h.Download))
	e.Register("list", HandlerFunc(h.List))
	e.Register("recipe", HandlerFunc(h.Recipe))
	e.Register("version", HandlerFunc(h.Version))
	return e
}

const configTopic = `Settings are applied in this order, later ones winning:

  1. built-in defaults
  2. the YAML file given by --config, or $XDG_CONFIG_HOME/coursedl/config.yaml
  3. COURSEDL_* environment variables (URL, DOWNLOAD_PATH, THREADS, TIMEOUT,
     CHUNK_SIZE, MAX_RETRIES, RETRY_DELAY, SELECTOR, UI)
  4. command line flags

Example config.yaml:

  url: https://class.devsamurai.com.br/
  download_path: ~/courses
  threads: 8
  timeout: 30
  chunk_size: 64KiB
  max_retries: 5
  retry_delay: 10s
  extract: true`

const recipeTopic = `A recipe is a Starlark file defining list(page). page has .url and .body;
the function returns a list of resource(title = ..., url = ...) values or
dicts with "title" and "url" keys. Relative URLs are resolved against the
page URL.

Builtins (keyword arguments only):

  resource(title, url)   build one entry
  download(url)          fetch another page, returns its body
  html.parse(data)       CSS selection: .find(selector), .each(), .text(), .attr(name)
  html.to_json(data)     HTML as nested dicts
  json.decode(data)      parse JSON
  json.encode(value)     serialize JSON
  jq.query(query, value) run a jq query, returns a list

Example:

  def list(page):
      out = []
      for a in html.parse(data = page.body).find("li a").each():
          out.append(resource(title = a.text(), url = a.attr("href")))
      return out`

const exitCodesTopic = `  0  every resource downloaded
  1  unexpected error
  2  invalid flags or configuration
  3  no resources found on the page
  4  one or more resources failed`
