package hatsetup

import (
	"bufio"
	"context"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/alecthomas/kong"
)

// Linux terminal command string to clear the current line and reset the cursor
const clearLineVT100 = "\033[2K\r"

// App bundles the configured subsystems for the command implementations.
type App struct {
	Config     *Config
	Translator *Translator
	System     *System
	Hardware   *Hardware
	Services   *Services
	Boot       *BootConfig
	Repo       *Repo
	Configs    *HATConfigs
	Avahi      *Avahi
	CLI        *MeshCLI
	Status     *Status

	assumeYes bool
}

type cli struct {
	Lang string `help:"Display language." short:"l"`
	Yes  bool   `help:"Assume yes on all confirmation prompts." short:"y"`

	Gui      guiCmd      `cmd:"" default:"1" help:"Open the graphical setup window."`
	Shell    shellCmd    `cmd:"" help:"Open an interactive setup shell."`
	Install  installCmd  `cmd:"" help:"Install the daemon from a release channel."`
	Remove   removeCmd   `cmd:"" help:"Remove the daemon and its package repository."`
	Enable   enableCmd   `cmd:"" help:"Enable an interface in the boot configuration."`
	Hat      hatCmd      `cmd:"" help:"Manage daemon configuration files for HATs."`
	Service  serviceCmd  `cmd:"" help:"Control the daemon's systemd service."`
	Avahi    avahiCmd    `cmd:"" help:"Turn network discovery on or off."`
	Region   regionCmd   `cmd:"" help:"Show or set the LoRa region."`
	Send     sendCmd     `cmd:"" help:"Broadcast a text message over the mesh."`
	Status   statusCmd   `cmd:"" help:"Show the node's setup state."`
	Edit     editCmd     `cmd:"" help:"Open the daemon configuration in an editor."`
	Cli      cliCmd      `cmd:"" name:"cli" help:"Install the meshtastic command line client."`
	Launcher launcherCmd `cmd:"" help:"Create a desktop launcher for the setup window."`
}

// Run parses the command line and dispatches to one of the setup commands.
// Without a command the GUI opens.
func Run() int {
	logfile := startLogging()
	defer logfile.Close()

	openBoxes()
	config, err := NewConfig()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	translator := NewTranslatorVar(config.Variables)

	var flags cli
	parser := kong.Must(&flags,
		kong.Name("meshadv-setup"),
		kong.Description(translator.Get("cli_description")),
		kong.UsageOnError(),
	)
	parsed, err := parser.Parse(os.Args[1:])
	if err != nil {
		parser.FatalIfErrorf(err)
		return 1
	}

	if flags.Lang != "" {
		if err := translator.SetLanguage(flags.Lang); err != nil {
			fmt.Printf("Language '%s' not available\n", flags.Lang)
		}
	}

	sys := NewSystem(config)
	services := NewServices(sys)
	hw := DetectHardware(config)
	app := &App{
		Config:     config,
		Translator: translator,
		System:     sys,
		Hardware:   hw,
		Services:   services,
		Boot:       NewBootConfig(sys),
		Repo:       NewRepo(sys, services),
		Configs:    NewHATConfigs(sys),
		Avahi:      NewAvahi(sys, services),
		CLI:        NewMeshCLI(sys),
		Status:     NewStatus(sys, hw),
		assumeYes:  flags.Yes,
	}
	log.Printf("detected hardware: %s", hw.Describe())

	if err := parsed.Run(app); err != nil {
		log.Printf("command failed: %v", err)
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	return 0
}

type guiCmd struct{}

func (guiCmd) Run(app *App) error {
	return RunGui(app)
}

type shellCmd struct{}

func (shellCmd) Run(app *App) error {
	return RunShell(app)
}

type installCmd struct {
	Channel       string `help:"Release channel, one of beta, alpha or daily." default:"beta"`
	EnableService bool   `help:"Enable and start the daemon after installing." default:"true" negatable:""`
	SkipBoot      bool   `help:"Do not touch the boot configuration."`
}

// minInstallSpace is the free disk space required before an install is
// attempted, roughly the daemon package plus apt caches.
const minInstallSpace = 200 * 1024 * 1024

func (c installCmd) Run(app *App) error {
	channel, err := ParseChannel(c.Channel)
	if err != nil {
		return err
	}
	if space := osDiskSpace("/"); space >= 0 && space < minInstallSpace {
		return fmt.Errorf("only %d MiB free on /, at least %d MiB needed",
			space/1024/1024, minInstallSpace/1024/1024)
	}
	if !app.confirm(app.Translator.Get("confirm_install") + " (" + string(channel) + ")") {
		return nil
	}
	ctx := context.Background()
	if err := app.cleanupExisting(ctx, app.confirm, func(line string) { fmt.Println(line) }); err != nil {
		return err
	}
	task := NewTask(InstallSteps...)
	if err := runTaskCLI(task, func(t *Task) error { return app.Repo.Install(ctx, channel, t) }); err != nil {
		return err
	}
	fmt.Println(app.Translator.Get("install_done"))

	rebootNeeded := false
	if !c.SkipBoot {
		changed, err := app.configureInterfaces(ctx)
		if err != nil {
			return err
		}
		rebootNeeded = changed
	}
	if err := app.applyHATConfig(ctx); err != nil {
		return err
	}
	if c.EnableService {
		if err := app.Services.Enable(ctx, app.Config.PackageName); err != nil {
			return err
		}
		if err := app.Services.Start(ctx, app.Config.PackageName); err != nil {
			return err
		}
		fmt.Println(app.Translator.Get("service_started"))
	}
	if rebootNeeded {
		fmt.Println(app.Translator.Get("reboot_needed"))
	}
	return nil
}

// cleanupExisting offers removal of repository entries and the daemon
// configuration directory left by an earlier installation. Declining keeps
// them in place and the install continues.
func (app *App) cleanupExisting(ctx context.Context, confirm func(string) bool, echo func(string)) error {
	if existing := app.Repo.Existing(); len(existing) > 0 {
		echo(app.Translator.Get("existing_repo_found"))
		for _, path := range existing {
			echo("  " + path)
		}
		if confirm(app.Translator.Get("confirm_purge_repo")) {
			if err := app.Repo.Purge(ctx); err != nil {
				return err
			}
			echo(app.Translator.Get("repo_purged"))
		}
	}
	if _, err := os.Stat(app.Config.ConfigDir); err == nil {
		if confirm(app.Translator.Get("confirm_remove_config_dir")) {
			if err := app.Configs.RemoveAll(ctx); err != nil {
				return err
			}
			echo(app.Translator.Get("config_dir_removed"))
		}
	}
	return nil
}

// configureInterfaces enables SPI and I2C, plus UART and the power and PPS
// lines when a MeshAdv HAT is attached.
func (app *App) configureInterfaces(ctx context.Context) (bool, error) {
	rebootNeeded := false
	steps := []func() (bool, error){
		func() (bool, error) { return app.Boot.EnableSPI(ctx) },
		func() (bool, error) { return app.Boot.EnableI2C(ctx) },
	}
	if app.Hardware.IsMeshAdv() {
		steps = append(steps,
			func() (bool, error) { return app.Boot.EnableUART(ctx, app.Hardware) },
			func() (bool, error) { return app.Boot.ConfigureHAT(ctx, app.Hardware) },
		)
	}
	for _, step := range steps {
		changed, err := step()
		if err != nil {
			return rebootNeeded, err
		}
		rebootNeeded = rebootNeeded || changed
	}
	return rebootNeeded, nil
}

// applyHATConfig seeds the available configurations and activates the one
// matching the detected HAT, unless several match.
func (app *App) applyHATConfig(ctx context.Context) error {
	if err := app.Configs.EnsureDirs(ctx); err != nil {
		return err
	}
	if err := app.Configs.Seed(ctx); err != nil {
		return err
	}
	matches, err := app.Configs.Matching(app.Hardware)
	if err != nil {
		return err
	}
	switch len(matches) {
	case 0:
		fmt.Println(app.Translator.Get("hatconf_none_matching"))
		return nil
	case 1:
		if _, err := app.Configs.Apply(ctx, matches[0]); err != nil {
			return err
		}
		fmt.Printf("%s %s\n", app.Translator.Get("hatconf_applied"), matches[0].Name)
		return nil
	default:
		fmt.Println(app.Translator.Get("hatconf_ambiguous"))
		for _, match := range matches {
			fmt.Println("  " + match.Name)
		}
		return nil
	}
}

type removeCmd struct{}

func (removeCmd) Run(app *App) error {
	if !app.confirm(app.Translator.Get("confirm_remove")) {
		return nil
	}
	ctx := context.Background()
	task := NewTask(RemoveSteps...)
	if err := runTaskCLI(task, func(t *Task) error { return app.Repo.Remove(ctx, t) }); err != nil {
		return err
	}
	fmt.Println(app.Translator.Get("remove_done"))
	return nil
}

type enableCmd struct {
	Interface string `arg:"" enum:"spi,i2c,uart,hat" help:"One of spi, i2c, uart or hat."`
}

func (c enableCmd) Run(app *App) error {
	ctx := context.Background()
	var (
		changed bool
		err     error
	)
	switch c.Interface {
	case "spi":
		changed, err = app.Boot.EnableSPI(ctx)
	case "i2c":
		changed, err = app.Boot.EnableI2C(ctx)
	case "uart":
		changed, err = app.Boot.EnableUART(ctx, app.Hardware)
	case "hat":
		changed, err = app.Boot.ConfigureHAT(ctx, app.Hardware)
	}
	if err != nil {
		return err
	}
	if changed {
		fmt.Println(app.Translator.Get("reboot_needed"))
	} else {
		fmt.Println(app.Translator.Get("boot_already_set"))
	}
	return nil
}

type hatCmd struct {
	List  hatListCmd  `cmd:"" default:"1" help:"List available and active configurations."`
	Apply hatApplyCmd `cmd:"" help:"Activate a configuration by name."`
	Seed  hatSeedCmd  `cmd:"" help:"Install the bundled configurations."`
}

type hatListCmd struct{}

func (hatListCmd) Run(app *App) error {
	available, err := app.Configs.Available()
	if err != nil {
		return err
	}
	active := app.Configs.Active()
	fmt.Println(app.Translator.Get("hatconf_available") + ":")
	for _, entry := range available {
		name := entry.Name
		if entry.IsDir {
			name += "/"
		}
		fmt.Println("  " + name)
	}
	fmt.Println(app.Translator.Get("hatconf_active") + ":")
	if len(active) == 0 {
		fmt.Println("  " + app.Translator.Get("status_none"))
	}
	for _, name := range active {
		fmt.Println("  " + name)
	}
	return nil
}

type hatApplyCmd struct {
	Name string `arg:"" help:"Name of an available configuration."`
}

func (c hatApplyCmd) Run(app *App) error {
	ctx := context.Background()
	available, err := app.Configs.Available()
	if err != nil {
		return err
	}
	for _, entry := range available {
		if entry.Name == c.Name || strings.TrimSuffix(entry.Name, ".yaml") == c.Name {
			files, err := app.Configs.Apply(ctx, entry)
			if err == ErrAmbiguousConfig {
				fmt.Println(app.Translator.Get("hatconf_ambiguous"))
				for _, file := range files {
					fmt.Println("  " + file.Name)
				}
				return nil
			}
			if err != nil {
				return err
			}
			fmt.Printf("%s %s\n", app.Translator.Get("hatconf_applied"), entry.Name)
			fmt.Println(app.Translator.Get("service_restart_hint"))
			return nil
		}
	}
	return fmt.Errorf("no configuration named %q", c.Name)
}

type hatSeedCmd struct{}

func (hatSeedCmd) Run(app *App) error {
	ctx := context.Background()
	if err := app.Configs.EnsureDirs(ctx); err != nil {
		return err
	}
	return app.Configs.Seed(ctx)
}

type serviceCmd struct {
	Action string `arg:"" enum:"enable,disable,start,stop,status" help:"One of enable, disable, start, stop or status."`
}

func (c serviceCmd) Run(app *App) error {
	ctx := context.Background()
	unit := app.Config.PackageName
	switch c.Action {
	case "enable":
		return app.Services.Enable(ctx, unit)
	case "disable":
		return app.Services.Disable(ctx, unit)
	case "start":
		return app.Services.Start(ctx, unit)
	case "stop":
		return app.Services.Stop(ctx, unit)
	case "status":
		onOff := func(v bool) string {
			if v {
				return app.Translator.Get("status_yes")
			}
			return app.Translator.Get("status_no")
		}
		fmt.Printf("%s: %s\n", app.Translator.Get("status_daemon_enabled"), onOff(app.Services.Enabled(ctx, unit)))
		fmt.Printf("%s: %s\n", app.Translator.Get("status_daemon_active"), onOff(app.Services.Active(ctx, unit)))
	}
	return nil
}

type avahiCmd struct {
	State string `arg:"" enum:"on,off" help:"on or off."`
}

func (c avahiCmd) Run(app *App) error {
	ctx := context.Background()
	if c.State == "off" {
		return app.Avahi.Disable(ctx)
	}
	task := NewTask(EnableSteps...)
	if err := runTaskCLI(task, func(t *Task) error { return app.Avahi.Enable(ctx, t) }); err != nil {
		return err
	}
	fmt.Println(app.Translator.Get("avahi_enabled"))
	return nil
}

type regionCmd struct {
	Region string `arg:"" optional:"" help:"Region to set. Without it the current region is shown."`
}

func (c regionCmd) Run(app *App) error {
	ctx := context.Background()
	if c.Region == "" {
		region, err := app.CLI.Region(ctx)
		if err != nil {
			return err
		}
		fmt.Println(region)
		return nil
	}
	return app.CLI.SetRegion(ctx, c.Region)
}

type sendCmd struct {
	Text string `arg:"" help:"Message text, 1 to 200 characters."`
}

func (c sendCmd) Run(app *App) error {
	return app.CLI.SendText(context.Background(), c.Text)
}

type statusCmd struct{}

func (statusCmd) Run(app *App) error {
	report := app.Status.Collect(context.Background())
	fmt.Print(app.Status.Summary(report, app.Translator))
	return nil
}

type editCmd struct{}

func (editCmd) Run(app *App) error {
	path := app.Configs.PrimaryConfig()
	if path == "" {
		return fmt.Errorf("no daemon configuration found in %s", app.Config.ConfigDir)
	}
	editor := os.Getenv("EDITOR")
	if editor == "" {
		editor = "nano"
	}
	if err := app.System.Interactive(editor, path); err != nil {
		return err
	}
	fmt.Println(app.Translator.Get("service_restart_hint"))
	return nil
}

type cliCmd struct{}

func (cliCmd) Run(app *App) error {
	ctx := context.Background()
	task := NewTask(CLIInstallSteps...)
	if err := runTaskCLI(task, func(t *Task) error { return app.CLI.Install(ctx, t) }); err != nil {
		return err
	}
	fmt.Println(app.Translator.Get("cli_install_done"))
	return nil
}

type launcherCmd struct{}

func (launcherCmd) Run(app *App) error {
	path, err := osCreateLauncherEntry(app.Config.Variables, StringMap{
		"tagline": app.Translator.Get("tagline"),
	})
	if err != nil {
		return err
	}
	fmt.Printf("%s %s\n", app.Translator.Get("launcher_created"), path)
	return nil
}

// confirm asks a y/n question on the terminal. The -y flag answers yes to
// everything.
func (app *App) confirm(prompt string) bool {
	if app.assumeYes {
		return true
	}
	fmt.Printf("%s [y/N] ", prompt)
	reader := bufio.NewReader(os.Stdin)
	answer, err := reader.ReadString('\n')
	if err != nil {
		return false
	}
	answer = strings.ToLower(strings.TrimSpace(answer))
	return answer == "y" || answer == "yes"
}

// runTaskCLI runs a task, printing each step on one reused terminal line,
// and waits for it to finish.
func runTaskCLI(task *Task, run func(*Task) error) error {
	task.SetProgressFunction(func(status TaskStatus) {
		if status.Step != nil {
			fmt.Print(clearLineVT100 + status.Step.Name)
		}
	})
	task.Start(run)
	err := task.WaitForDone()
	fmt.Print(clearLineVT100)
	return err
}

// startLogging sets up the logging
func startLogging() *os.File {
	logfile, err := os.OpenFile(defaultLogFilename(), os.O_RDWR|os.O_CREATE|os.O_APPEND, 0666)
	if err != nil {
		log.Fatal(err)
	}
	log.SetFlags(log.Ldate | log.Ltime)
	log.SetOutput(logfile)
	return logfile
}

func defaultLogFilename() string {
	if name := os.Getenv("MESHADV_SETUP_LOG"); name != "" {
		return name
	}
	return "meshadv-setup.log"
}
