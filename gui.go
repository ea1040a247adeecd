package hatsetup

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/gotk3/gotk3/glib"
	"github.com/gotk3/gotk3/gtk"
)

// statusRefreshMillis is the period of the GUI's background status poll, on
// top of filesystem-triggered refreshes.
const statusRefreshMillis uint = 30000

type (
	EventHandler map[string]interface{}

	// Gui is a one-window dashboard. The left side shows the node's setup
	// state, the right side holds the actions, the bottom a progress bar
	// and an output log.
	Gui struct {
		app     *App
		builder *gtk.Builder
		win     *gtk.Window

		labelModel   *gtk.Label
		labelHAT     *gtk.Label
		labelDaemon  *gtk.Label
		labelBoot    *gtk.Label
		labelConfigs *gtk.Label
		labelCLI     *gtk.Label
		labelRegion  *gtk.Label
		labelAvahi   *gtk.Label

		comboChannel  *gtk.ComboBoxText
		comboRegion   *gtk.ComboBoxText
		comboLanguage *gtk.ComboBoxText
		entryMessage  *gtk.Entry
		progressBar   *gtk.ProgressBar
		outputView    *gtk.TextView
		quitDialog    *gtk.Dialog

		task    *Task
		report  Report
		watcher *Watcher
	}
)

func guiEventHandler(g *Gui) (handler EventHandler) {
	return EventHandler{
		"on_install_clicked":    func() { g.install() },
		"on_remove_clicked":     func() { g.remove() },
		"on_interfaces_clicked": func() { g.interfaces() },
		"on_hatconf_clicked":    func() { g.hatConf() },
		"on_avahi_clicked":      func() { g.avahi() },
		"on_meshcli_clicked":    func() { g.meshCLI() },
		"on_region_clicked":     func() { g.setRegion() },
		"on_send_clicked":       func() { g.send() },
		"on_refresh_clicked":    func() { g.refresh() },
		"on_language_changed":   func() { g.setLanguage() },
		"on_quit_clicked":       func() { g.quitDialog.ShowAll(); g.quitDialog.GrabFocus() },
		"on_quit_no_clicked":    func() { g.quitDialog.Hide() },
		"on_quit_yes_clicked":   func() { gtk.MainQuit() },
		"on_main_close":         func() bool { g.quitDialog.ShowAll(); return true },
		"on_main_destroy":       func() { gtk.MainQuit() },
	}
}

func internalEventHandler(g *Gui) (handler EventHandler) {
	return EventHandler{
		"on_task_finished": g.taskFinished,
		"update_progress":  g.updateProgress,
		"update_status":    g.updateStatus,
	}
}

// RunGui opens the dashboard window and blocks until it is closed. An error
// is returned when GTK cannot start, commonly on headless systems, so the
// caller can point to the shell mode instead.
func RunGui(app *App) error {
	tempPath := filepath.Join(os.TempDir(), "meshadv-setup")
	defer os.RemoveAll(tempPath)
	if err := UnpackResourceDir("gui", filepath.Join(tempPath, "gui")); err != nil {
		return err
	}
	gui, err := GuiNew(tempPath, app)
	if err != nil {
		log.Printf("GUI startup failed: %v", err)
		fmt.Println(app.Translator.Get("err_gui_startup_failed"))
		return err
	}
	gui.run()
	return nil
}

func GuiNew(resourcesPath string, app *App) (*Gui, error) {
	err := gtk.InitCheck(nil)
	if err != nil {
		return nil, err
	}
	builder, err := gtk.BuilderNewFromFile(filepath.Join(resourcesPath, "gui", "meshadv.glade"))
	if err != nil {
		return nil, err
	}
	gui := &Gui{
		app:           app,
		builder:       builder,
		win:           getWindow(builder, "main_window"),
		labelModel:    getLabel(builder, "label_model"),
		labelHAT:      getLabel(builder, "label_hat"),
		labelDaemon:   getLabel(builder, "label_daemon"),
		labelBoot:     getLabel(builder, "label_boot"),
		labelConfigs:  getLabel(builder, "label_configs"),
		labelCLI:      getLabel(builder, "label_cli"),
		labelRegion:   getLabel(builder, "label_region"),
		labelAvahi:    getLabel(builder, "label_avahi"),
		comboChannel:  getComboBoxText(builder, "combo_channel"),
		comboRegion:   getComboBoxText(builder, "combo_region"),
		comboLanguage: getComboBoxText(builder, "combo_language"),
		entryMessage:  getEntry(builder, "entry_message"),
		progressBar:   getProgressBar(builder, "progress_bar"),
		outputView:    getTextView(builder, "output_view"),
		quitDialog:    getDialog(builder, "quit_dialog"),
	}
	if gui.win == nil {
		return nil, errors.New("main window missing from GUI definition")
	}
	gui.builder.ConnectSignals(guiEventHandler(gui))
	for signal, handler := range internalEventHandler(gui) {
		glib.SignalNew(signal)
		gui.win.Connect(signal, handler)
	}

	gui.win.SetTitle(gui.t("title"))
	gui.setLabel("header_title", gui.t("header"))
	gui.relabel()
	gui.setChannelOptions()
	gui.setRegionOptions()
	gui.setLanguageOptions()

	if watcher, err := NewWatcher(app.Config); err == nil {
		gui.watcher = watcher
		go func() {
			for range watcher.Changes {
				glib.IdleAdd(func() { gui.refresh() })
			}
		}()
	}
	glib.TimeoutAdd(statusRefreshMillis, func() bool {
		gui.refresh()
		return true
	})

	gui.refresh()
	return gui, nil
}

func (g *Gui) run() {
	g.win.ShowAll()
	gtk.Main()
	if g.watcher != nil {
		g.watcher.Close()
	}
}

// t returns a localized string for the key, and expands any template
// variables therein.
func (g *Gui) t(key string) (localized string) {
	return g.app.Translator.Get(key)
}

func (g *Gui) setLabel(labelId string, content string) error {
	label := getLabel(g.builder, labelId)
	if label == nil {
		return fmt.Errorf("no label '%s'", labelId)
	}
	label.SetLabel(content)
	return nil
}

// relabel sets all static texts in the current language.
func (g *Gui) relabel() {
	for labelId, key := range map[string]string{
		"header_title":     "header",
		"label_status":     "gui_status_header",
		"label_actions":    "gui_actions_header",
		"button_install":   "gui_button_install",
		"button_remove":    "gui_button_remove",
		"button_interface": "gui_button_interfaces",
		"button_hatconf":   "gui_button_hatconf",
		"button_avahi":     "gui_button_avahi",
		"button_meshcli":   "gui_button_meshcli",
		"button_region":    "gui_button_region",
		"button_send":      "gui_button_send",
		"button_refresh":   "gui_button_refresh",
		"button_quit":      "button_quit",
		"quit_text":        "quit_text",
		"caption_model":    "status_model",
		"caption_hat":      "status_hat",
		"caption_daemon":   "status_daemon",
		"caption_boot":     "status_interfaces",
		"caption_configs":  "status_active_configs",
		"caption_cli":      "status_cli",
		"caption_region":   "status_region",
		"caption_avahi":    "status_avahi",
	} {
		if labelId[:6] == "button" {
			if button := getButton(g.builder, labelId); button != nil {
				button.SetLabel(g.t(key))
			}
			continue
		}
		g.setLabel(labelId, g.t(key))
	}
	g.win.SetTitle(g.t("title"))
}

func (g *Gui) setChannelOptions() {
	if g.comboChannel == nil {
		return
	}
	g.comboChannel.RemoveAll()
	for _, channel := range Channels {
		g.comboChannel.Append(string(channel), string(channel))
	}
	g.comboChannel.SetActiveID(string(ChannelBeta))
}

func (g *Gui) setRegionOptions() {
	if g.comboRegion == nil {
		return
	}
	g.comboRegion.RemoveAll()
	for _, region := range Regions {
		g.comboRegion.Append(region, region)
	}
}

func (g *Gui) setLanguageOptions() {
	if g.comboLanguage == nil {
		return
	}
	g.comboLanguage.RemoveAll()
	displayStrings := g.app.Translator.GetAll(displayKey)
	for _, id := range g.app.Translator.GetLanguages() {
		g.comboLanguage.Append(id, displayStrings[id])
		if id == g.app.Translator.GetLanguage() {
			g.comboLanguage.SetActiveID(id)
		}
	}
}

func (g *Gui) setLanguage() {
	if g.comboLanguage == nil {
		return
	}
	id := g.comboLanguage.GetActiveID()
	if id == "" || id == g.app.Translator.GetLanguage() {
		return
	}
	if err := g.app.Translator.SetLanguage(id); err != nil {
		log.Println(err)
		return
	}
	g.relabel()
	g.updateStatus()
}

// refresh collects a new report off the GTK thread and then updates the
// status labels on it.
func (g *Gui) refresh() {
	go func() {
		report := g.app.Status.Collect(context.Background())
		glib.IdleAdd(func() {
			g.report = report
			g.win.Emit("update_status")
		})
	}()
}

func (g *Gui) updateStatus() {
	report := g.report
	yes, no := g.t("status_yes"), g.t("status_no")
	onOff := func(v bool) string {
		if v {
			return yes
		}
		return no
	}
	orNone := func(v string) string {
		if v == "" {
			return g.t("status_none")
		}
		return v
	}
	g.labelModel.SetLabel(orNone(report.Model))
	g.labelHAT.SetLabel(orNone(report.HATName))
	daemon := orNone(report.DaemonVersion)
	if report.DaemonInstalled() {
		if report.DaemonActive {
			daemon += " (" + g.t("status_running") + ")"
		} else {
			daemon += " (" + g.t("status_stopped") + ")"
		}
	}
	g.labelDaemon.SetLabel(daemon)
	g.labelBoot.SetLabel(fmt.Sprintf("SPI %s, I2C %s, UART %s",
		onOff(report.SPIEnabled), onOff(report.I2CEnabled), onOff(report.UARTEnabled)))
	g.labelConfigs.SetLabel(orNone(strings.Join(report.ActiveConfigs, ", ")))
	g.labelCLI.SetLabel(orNone(report.CLIVersion))
	g.labelRegion.SetLabel(orNone(report.Region))
	g.labelAvahi.SetLabel(onOff(report.AvahiEnabled))
}

// question shows a modal yes/no dialog and reports the answer.
func (g *Gui) question(text string) bool {
	dialog := gtk.MessageDialogNew(g.win, gtk.DIALOG_MODAL, gtk.MESSAGE_QUESTION, gtk.BUTTONS_YES_NO, "%s", text)
	defer dialog.Destroy()
	return dialog.Run() == gtk.RESPONSE_YES
}

// appendOutput adds a line to the output log at the bottom of the window.
func (g *Gui) appendOutput(text string) {
	if g.outputView == nil {
		return
	}
	buffer, err := g.outputView.GetBuffer()
	if err != nil {
		return
	}
	buffer.Insert(buffer.GetEndIter(), text+"\n")
}

// startTask runs a long action in the background and animates the progress
// bar until it finishes. Only one task runs at a time.
func (g *Gui) startTask(steps []string, run func(*Task) error) {
	if g.task != nil && !g.task.Done() {
		g.appendOutput(g.t("gui_task_running"))
		return
	}
	g.task = NewTask(steps...)
	g.task.Start(run)
	glib.IdleAdd(g.taskProgress)
}

func (g *Gui) taskProgress() (repeat bool) {
	status := g.task.Status()
	g.win.Emit("update_progress")
	if status.Done {
		g.win.Emit("on_task_finished")
		return false
	}
	return true
}

func (g *Gui) updateProgress() {
	if step := g.task.CurrentStep(); step != nil {
		g.progressBar.SetText(step.Name)
		g.appendOutput(step.Name)
	}
	g.progressBar.SetFraction(g.task.Progress())
}

func (g *Gui) taskFinished() {
	if err := g.task.Err(); err != nil {
		g.appendOutput(g.t("gui_task_failed") + ": " + err.Error())
	} else {
		g.progressBar.SetFraction(1)
		g.appendOutput(g.t("gui_task_done"))
	}
	g.refresh()
}

func (g *Gui) install() {
	channel := ChannelBeta
	if g.comboChannel != nil {
		if parsed, err := ParseChannel(g.comboChannel.GetActiveID()); err == nil {
			channel = parsed
		}
	}
	app := g.app
	ctx := context.Background()
	purgeRepo := len(app.Repo.Existing()) > 0 && g.question(g.t("confirm_purge_repo"))
	removeConfig := false
	if _, err := os.Stat(app.Config.ConfigDir); err == nil {
		removeConfig = g.question(g.t("confirm_remove_config_dir"))
	}
	g.startTask(InstallSteps, func(t *Task) error {
		if purgeRepo {
			if err := app.Repo.Purge(ctx); err != nil {
				return err
			}
		}
		if removeConfig {
			if err := app.Configs.RemoveAll(ctx); err != nil {
				return err
			}
		}
		if err := app.Repo.Install(ctx, channel, t); err != nil {
			return err
		}
		if _, err := app.configureInterfaces(ctx); err != nil {
			return err
		}
		if err := app.applyHATConfig(ctx); err != nil {
			return err
		}
		if err := app.Services.Enable(ctx, app.Config.PackageName); err != nil {
			return err
		}
		return app.Services.Start(ctx, app.Config.PackageName)
	})
}

func (g *Gui) remove() {
	if !g.question(g.t("confirm_remove")) {
		return
	}
	app := g.app
	g.startTask(RemoveSteps, func(t *Task) error {
		return app.Repo.Remove(context.Background(), t)
	})
}

func (g *Gui) interfaces() {
	app := g.app
	gui := g
	g.startTask([]string{"configure boot interfaces"}, func(t *Task) error {
		t.Advance()
		changed, err := app.configureInterfaces(context.Background())
		if err != nil {
			return err
		}
		if changed {
			glib.IdleAdd(func() { gui.appendOutput(gui.t("reboot_needed")) })
		}
		return nil
	})
}

func (g *Gui) hatConf() {
	app := g.app
	g.startTask([]string{"apply HAT configuration"}, func(t *Task) error {
		t.Advance()
		ctx := context.Background()
		if err := app.Configs.EnsureDirs(ctx); err != nil {
			return err
		}
		if err := app.Configs.Seed(ctx); err != nil {
			return err
		}
		return app.applyHATConfig(ctx)
	})
}

func (g *Gui) avahi() {
	app := g.app
	ctx := context.Background()
	if app.Avahi.Enabled(ctx) {
		g.startTask([]string{"disable discovery"}, func(t *Task) error {
			t.Advance()
			return app.Avahi.Disable(ctx)
		})
		return
	}
	g.startTask(EnableSteps, func(t *Task) error {
		return app.Avahi.Enable(ctx, t)
	})
}

func (g *Gui) meshCLI() {
	app := g.app
	g.startTask(CLIInstallSteps, func(t *Task) error {
		return app.CLI.Install(context.Background(), t)
	})
}

func (g *Gui) setRegion() {
	if g.comboRegion == nil {
		return
	}
	region := g.comboRegion.GetActiveID()
	if region == "" {
		g.appendOutput(g.t("gui_pick_region_first"))
		return
	}
	app := g.app
	g.startTask([]string{"set LoRa region"}, func(t *Task) error {
		t.Advance()
		return app.CLI.SetRegion(context.Background(), region)
	})
}

func (g *Gui) send() {
	if g.entryMessage == nil {
		return
	}
	text, err := g.entryMessage.GetText()
	if err != nil {
		return
	}
	app := g.app
	gui := g
	g.startTask([]string{"send message"}, func(t *Task) error {
		t.Advance()
		if err := app.CLI.SendText(context.Background(), text); err != nil {
			return err
		}
		glib.IdleAdd(func() { gui.entryMessage.SetText("") })
		return nil
	})
}
