package hatsetup

import (
	"context"
	"strings"

	"github.com/abiosoft/ishell"
)

const appKey = "$app"

// RunShell starts an interactive setup shell. Each command maps to one setup
// action, choices like the release channel and the region are picked from
// menus.
func RunShell(app *App) error {
	shell := ishell.New()
	shell.Set(appKey, app)
	shell.SetPrompt("meshadv> ")
	shell.Println(app.Translator.Get("shell_welcome"))
	shell.Println(app.Hardware.Describe())
	for _, cmd := range shellCommands() {
		shell.AddCmd(cmd)
	}
	shell.Run()
	return nil
}

func appFrom(c *ishell.Context) *App {
	return c.Get(appKey).(*App)
}

func shellCommands() []*ishell.Cmd {
	return []*ishell.Cmd{
		{
			Name: "status",
			Help: "show the node's setup state",
			Func: func(c *ishell.Context) {
				app := appFrom(c)
				report := app.Status.Collect(context.Background())
				c.Print(app.Status.Summary(report, app.Translator))
			},
		},
		{
			Name: "install",
			Help: "pick a release channel and install the daemon",
			Func: shellInstall,
		},
		{
			Name: "remove",
			Help: "remove the daemon and its package repository",
			Func: shellRemove,
		},
		{
			Name: "interfaces",
			Help: "enable SPI, I2C and, with a MeshAdv HAT, UART and power lines",
			Func: func(c *ishell.Context) {
				app := appFrom(c)
				changed, err := app.configureInterfaces(context.Background())
				if err != nil {
					c.Err(err)
					return
				}
				if changed {
					c.Println(app.Translator.Get("reboot_needed"))
				} else {
					c.Println(app.Translator.Get("boot_already_set"))
				}
			},
		},
		{
			Name: "hatconf",
			Help: "pick and activate a daemon configuration",
			Func: shellHATConf,
		},
		{
			Name: "region",
			Help: "pick the LoRa region",
			Func: shellRegion,
		},
		{
			Name: "send",
			Help: "broadcast a text message over the mesh",
			Func: shellSend,
		},
		{
			Name: "avahi",
			Help: "turn network discovery on or off",
			Func: shellAvahi,
		},
		{
			Name: "meshcli",
			Help: "install the meshtastic command line client",
			Func: func(c *ishell.Context) {
				app := appFrom(c)
				task := NewTask(CLIInstallSteps...)
				if err := runTaskShell(c, task, func(t *Task) error {
					return app.CLI.Install(context.Background(), t)
				}); err != nil {
					c.Err(err)
					return
				}
				c.Println(app.Translator.Get("cli_install_done"))
			},
		},
		{
			Name: "service",
			Help: "enable, disable, start or stop the daemon",
			Func: shellService,
		},
	}
}

func shellInstall(c *ishell.Context) {
	app := appFrom(c)
	names := make([]string, len(Channels))
	for i, channel := range Channels {
		names[i] = string(channel)
	}
	choice := c.MultiChoice(names, app.Translator.Get("shell_pick_channel"))
	if choice < 0 {
		return
	}
	channel := Channels[choice]
	ctx := context.Background()
	err := app.cleanupExisting(ctx,
		func(prompt string) bool { return shellConfirm(c, prompt) },
		func(line string) { c.Println(line) })
	if err != nil {
		c.Err(err)
		return
	}
	task := NewTask(InstallSteps...)
	if err := runTaskShell(c, task, func(t *Task) error {
		return app.Repo.Install(ctx, channel, t)
	}); err != nil {
		c.Err(err)
		return
	}
	c.Println(app.Translator.Get("install_done"))

	changed, err := app.configureInterfaces(ctx)
	if err != nil {
		c.Err(err)
		return
	}
	if err := app.applyHATConfig(ctx); err != nil {
		c.Err(err)
		return
	}
	if shellConfirm(c, app.Translator.Get("shell_enable_service")) {
		if err := app.Services.Enable(ctx, app.Config.PackageName); err != nil {
			c.Err(err)
			return
		}
		if err := app.Services.Start(ctx, app.Config.PackageName); err != nil {
			c.Err(err)
			return
		}
		c.Println(app.Translator.Get("service_started"))
	}
	if changed {
		c.Println(app.Translator.Get("reboot_needed"))
	}
}

func shellRemove(c *ishell.Context) {
	app := appFrom(c)
	if !shellConfirm(c, app.Translator.Get("confirm_remove")) {
		return
	}
	task := NewTask(RemoveSteps...)
	if err := runTaskShell(c, task, func(t *Task) error {
		return app.Repo.Remove(context.Background(), t)
	}); err != nil {
		c.Err(err)
		return
	}
	c.Println(app.Translator.Get("remove_done"))
}

func shellHATConf(c *ishell.Context) {
	app := appFrom(c)
	ctx := context.Background()
	if err := app.Configs.EnsureDirs(ctx); err != nil {
		c.Err(err)
		return
	}
	if err := app.Configs.Seed(ctx); err != nil {
		c.Err(err)
		return
	}
	available, err := app.Configs.Available()
	if err != nil {
		c.Err(err)
		return
	}
	if len(available) == 0 {
		c.Println(app.Translator.Get("hatconf_none_available"))
		return
	}
	names := make([]string, len(available))
	for i, entry := range available {
		names[i] = entry.Name
		if entry.IsDir {
			names[i] += "/"
		}
	}
	choice := c.MultiChoice(names, app.Translator.Get("shell_pick_config"))
	if choice < 0 {
		return
	}
	files, err := app.Configs.Apply(ctx, available[choice])
	if err == ErrAmbiguousConfig {
		fileNames := make([]string, len(files))
		for i, file := range files {
			fileNames[i] = file.Name
		}
		fileChoice := c.MultiChoice(fileNames, app.Translator.Get("shell_pick_config_file"))
		if fileChoice < 0 {
			return
		}
		_, err = app.Configs.Apply(ctx, files[fileChoice])
	}
	if err != nil {
		c.Err(err)
		return
	}
	c.Println(app.Translator.Get("hatconf_applied"))
	c.Println(app.Translator.Get("service_restart_hint"))
}

func shellRegion(c *ishell.Context) {
	app := appFrom(c)
	ctx := context.Background()
	if current, err := app.CLI.Region(ctx); err == nil {
		c.Printf("%s: %s\n", app.Translator.Get("status_region"), current)
	}
	choice := c.MultiChoice(Regions, app.Translator.Get("shell_pick_region"))
	if choice < 0 {
		return
	}
	if err := app.CLI.SetRegion(ctx, Regions[choice]); err != nil {
		c.Err(err)
		return
	}
	c.Printf("%s: %s\n", app.Translator.Get("status_region"), Regions[choice])
}

func shellSend(c *ishell.Context) {
	app := appFrom(c)
	text := strings.Join(c.Args, " ")
	if text == "" {
		c.Print(app.Translator.Get("shell_message_prompt") + " ")
		text = c.ReadLine()
	}
	if err := app.CLI.SendText(context.Background(), text); err != nil {
		c.Err(err)
		return
	}
	c.Println(app.Translator.Get("send_done"))
}

func shellAvahi(c *ishell.Context) {
	app := appFrom(c)
	ctx := context.Background()
	if app.Avahi.Enabled(ctx) {
		if shellConfirm(c, app.Translator.Get("shell_avahi_disable")) {
			if err := app.Avahi.Disable(ctx); err != nil {
				c.Err(err)
			}
		}
		return
	}
	task := NewTask(EnableSteps...)
	if err := runTaskShell(c, task, func(t *Task) error {
		return app.Avahi.Enable(ctx, t)
	}); err != nil {
		c.Err(err)
		return
	}
	c.Println(app.Translator.Get("avahi_enabled"))
}

func shellService(c *ishell.Context) {
	app := appFrom(c)
	ctx := context.Background()
	actions := []string{"enable", "disable", "start", "stop"}
	choice := c.MultiChoice(actions, app.Translator.Get("shell_pick_service_action"))
	if choice < 0 {
		return
	}
	unit := app.Config.PackageName
	var err error
	switch actions[choice] {
	case "enable":
		err = app.Services.Enable(ctx, unit)
	case "disable":
		err = app.Services.Disable(ctx, unit)
	case "start":
		err = app.Services.Start(ctx, unit)
	case "stop":
		err = app.Services.Stop(ctx, unit)
	}
	if err != nil {
		c.Err(err)
	}
}

func shellConfirm(c *ishell.Context, prompt string) bool {
	choice := c.MultiChoice([]string{"yes", "no"}, prompt)
	return choice == 0
}

// runTaskShell runs a task, echoing each step into the shell, and waits for
// it to finish.
func runTaskShell(c *ishell.Context, task *Task, run func(*Task) error) error {
	task.SetProgressFunction(func(status TaskStatus) {
		if status.Step != nil {
			c.Println("  " + status.Step.Name)
		}
	})
	task.Start(run)
	return task.WaitForDone()
}
