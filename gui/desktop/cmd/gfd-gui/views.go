package main

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/layout"
	"fyne.io/fyne/v2/widget"

	"github.com/HaDeSMonsta/get-flight-data/pkg/history"
	"github.com/HaDeSMonsta/get-flight-data/pkg/logging"
	"github.com/HaDeSMonsta/get-flight-data/pkg/services"
	statepkg "github.com/HaDeSMonsta/get-flight-data/pkg/state"
)

// ----- UI Composition -----

type viewID string

const (
	viewFlightData  viewID = "Flight data"
	viewCredentials viewID = "Credentials"
	viewHistory     viewID = "History"
	viewLogs        viewID = "Logs"
)

func buildUI(ctx context.Context, app fyne.App, w fyne.Window, rt *Runtime) fyne.CanvasObject {
	dyn := container.NewStack()

	flightView := buildFlightDataView(ctx, rt)
	views := map[viewID]fyne.CanvasObject{
		viewFlightData:  flightView,
		viewCredentials: buildCredentialsView(ctx, rt, w),
		viewHistory:     buildHistoryView(ctx, rt),
		viewLogs:        buildLogsView(rt),
	}

	currentView := viewFlightData
	sidebar := buildSidebar(app, dyn, views, rt, &currentView)

	dyn.Objects = []fyne.CanvasObject{flightView}

	split := container.NewHSplit(sidebar, dyn)
	split.SetOffset(0.18)
	return split
}

func buildSidebar(app fyne.App, dyn *fyne.Container, views map[viewID]fyne.CanvasObject, rt *Runtime, currentView *viewID) fyne.CanvasObject {
	title := widget.NewLabel(fmt.Sprintf("gfd %s", version))
	title.Alignment = fyne.TextAlignCenter
	title.TextStyle = fyne.TextStyle{Bold: true}

	buttons := make(map[viewID]*widget.Button)

	switchViewBtn := func(id viewID) *widget.Button {
		btn := widget.NewButton(string(id), func() {
			slog.Debug("Switch view", "view", id)
			*currentView = id
			dyn.Objects = []fyne.CanvasObject{views[id]}
			dyn.Refresh()

			for viewName, button := range buttons {
				if viewName == id {
					button.Importance = widget.HighImportance
				} else {
					button.Importance = widget.MediumImportance
				}
				button.Refresh()
			}
		})
		if id == *currentView {
			btn.Importance = widget.HighImportance
		} else {
			btn.Importance = widget.MediumImportance
		}
		buttons[id] = btn
		return btn
	}

	themeToggle := widget.NewButton("Toggle Theme", func() {
		rt.mu.Lock()
		if strings.ToLower(rt.state.Theme) == "dark" {
			rt.state.Theme = "light"
		} else {
			rt.state.Theme = "dark"
		}
		variant := rt.state.Theme
		rt.mu.Unlock()
		app.Preferences().SetString("themeVariant", variant)
		saveState(rt)
	})

	return container.NewVBox(
		title,
		widget.NewSeparator(),
		switchViewBtn(viewFlightData),
		switchViewBtn(viewCredentials),
		switchViewBtn(viewHistory),
		switchViewBtn(viewLogs),
		widget.NewSeparator(),
		themeToggle,
		layout.NewSpacer(),
	)
}

// ----- Flight Data View -----

func buildFlightDataView(ctx context.Context, rt *Runtime) fyne.CanvasObject {
	departure := newBlockLabel("Waiting for flight plan...")
	arrival := newBlockLabel("")

	lastRefreshed := widget.NewLabel("Last refreshed: never")
	airports := widget.NewLabel("")
	phase := widget.NewLabel("")

	errLabel := widget.NewLabel("")
	errLabel.Importance = widget.DangerImportance
	errLabel.Wrapping = fyne.TextWrapWord
	errLabel.Hide()

	progress := widget.NewProgressBarInfinite()
	progress.Hide()

	reloadBtn := widget.NewButton("Reload data", func() {
		rt.sched.ReloadData()
	})
	reloadPlanBtn := widget.NewButton("Reload flight plan", func() {
		rt.sched.ReloadFlightPlan()
	})
	suppress := widget.NewCheck("Suppress automatic updates", func(checked bool) {
		rt.sched.SetSuppressed(checked)
		rt.mu.Lock()
		rt.state.SuppressAutoUpdates = checked
		rt.mu.Unlock()
		saveState(rt)
	})
	suppress.SetChecked(rt.sched.Suppressed())

	// Snapshots arrive on the subscription; widgets are only touched via fyne.Do.
	updates, cancel := rt.sched.State().Subscribe()
	go func() {
		defer cancel()
		for {
			select {
			case <-ctx.Done():
				return
			case snap, ok := <-updates:
				if !ok {
					return
				}
				if rt.recordSnapshot(snap) {
					saveState(rt)
				}
				fyne.Do(func() {
					if snap.Report != nil {
						departure.SetText(snap.Report.DepartureBlock)
						arrival.SetText(snap.Report.ArrivalBlock)
						lastRefreshed.SetText("Last refreshed: " + snap.Report.FetchedAt.Local().Format("15:04"))
					}
					if !snap.Airports.IsZero() {
						airports.SetText(snap.Airports.String())
					}
					if snap.LastError != "" {
						errLabel.SetText(snap.LastError)
						errLabel.Show()
					} else {
						errLabel.Hide()
					}
					if snap.Loading {
						phase.SetText(strings.ReplaceAll(snap.Phase.String(), "-", " ") + "...")
						progress.Show()
						progress.Start()
					} else {
						phase.SetText("")
						progress.Stop()
						progress.Hide()
					}
				})
			}
		}
	}()

	blocks := container.NewGridWithColumns(2,
		container.NewVScroll(departure),
		container.NewVScroll(arrival),
	)

	return container.NewBorder(
		container.NewVBox(
			widget.NewLabelWithStyle("Flight data", fyne.TextAlignLeading, fyne.TextStyle{Bold: true}),
			widget.NewSeparator(),
			container.NewHBox(reloadBtn, reloadPlanBtn, suppress),
			container.NewHBox(lastRefreshed, airports, phase),
			progress,
			errLabel,
		),
		nil, nil, nil,
		blocks,
	)
}

func newBlockLabel(text string) *widget.Label {
	lbl := widget.NewLabel(text)
	lbl.Wrapping = fyne.TextWrapWord
	lbl.TextStyle = fyne.TextStyle{Monospace: true}
	return lbl
}

// ----- Credentials View -----

func buildCredentialsView(ctx context.Context, rt *Runtime, _ fyne.Window) fyne.CanvasObject {
	account := widget.NewEntry()
	account.SetPlaceHolder("SimBrief user name")
	apiKey := widget.NewPasswordEntry()
	apiKey.SetPlaceHolder("unchanged")
	status := widget.NewLabel("")

	current, err := rt.creds.Load()
	if err != nil {
		status.SetText("Failed to read credentials: " + err.Error())
	} else {
		account.SetText(current.AccountName)
		if current.APIKey != "" {
			status.SetText("API key stored (" + statepkg.RedactToken(current.APIKey) + ")")
		}
	}

	form := widget.NewForm(
		widget.NewFormItem("Account name", account),
		widget.NewFormItem("API key", apiKey),
	)
	form.SubmitText = "Save"
	form.OnSubmit = func() {
		c := statepkg.Credentials{AccountName: strings.TrimSpace(account.Text), APIKey: apiKey.Text}
		if c.APIKey == "" {
			// an empty entry keeps the stored key
			if stored, err := rt.creds.Load(); err == nil {
				c.APIKey = stored.APIKey
			}
		}
		status.SetText("Saving...")
		go func() {
			err := rt.sched.SaveCredentials(ctx, c)
			fyne.Do(func() {
				if err != nil {
					status.SetText("Save failed: " + err.Error())
					return
				}
				apiKey.SetText("")
				status.SetText("Saved at " + time.Now().Format("15:04:05"))
			})
		}()
	}

	return container.NewBorder(
		container.NewVBox(
			widget.NewLabelWithStyle("Credentials", fyne.TextAlignLeading, fyne.TextStyle{Bold: true}),
			widget.NewSeparator(),
			widget.NewLabel("Stored in "+rt.creds.Path()),
			form,
			status,
		),
		nil, nil, nil,
		layout.NewSpacer(),
	)
}

// ----- History View -----

func buildHistoryView(ctx context.Context, rt *Runtime) fyne.CanvasObject {
	if rt.history == nil {
		return container.NewCenter(widget.NewLabel("Report history is disabled."))
	}

	var entries []history.Entry
	status := widget.NewLabel("")

	list := widget.NewList(
		func() int { return len(entries) },
		func() fyne.CanvasObject { return widget.NewLabel("") },
		func(i widget.ListItemID, o fyne.CanvasObject) {
			if i >= len(entries) {
				o.(*widget.Label).SetText("")
				return
			}
			o.(*widget.Label).SetText(historyLine(entries[i]))
		},
	)

	reload := func() {
		go func() {
			loaded, err := rt.history.List(ctx, history.DefaultLimit)
			fyne.Do(func() {
				if err != nil {
					status.SetText("Failed to load history: " + err.Error())
					return
				}
				entries = loaded
				if len(entries) == 0 {
					status.SetText("No report history yet.")
				} else {
					status.SetText(fmt.Sprintf("%d reports", len(entries)))
				}
				list.Refresh()
			})
		}()
	}
	reload()

	return container.NewBorder(
		container.NewVBox(
			widget.NewLabelWithStyle("History", fyne.TextAlignLeading, fyne.TextStyle{Bold: true}),
			widget.NewSeparator(),
			container.NewHBox(widget.NewButton("Refresh", reload), status),
		),
		nil, nil, nil,
		list,
	)
}

func historyLine(e history.Entry) string {
	return fmt.Sprintf("%s  %s (%s) → %s (%s)",
		e.FetchedAt.Local().Format("2006-01-02 15:04"),
		e.Departure, e.DepFlightRules,
		e.Arrival, e.ArrFlightRules)
}

// ----- Logs View -----

func buildLogsView(rt *Runtime) fyne.CanvasObject {
	searchEntry := widget.NewEntry()
	searchEntry.SetPlaceHolder("Filter text (substring)")

	var logList *widget.List
	errorOnlyToggle := widget.NewCheck("Show only errors", func(bool) {
		if logList != nil {
			logList.Refresh()
		}
	})
	structuredErrorsToggle := widget.NewCheck("Show recorded errors", func(bool) {
		if logList != nil {
			logList.Refresh()
		}
	})
	levelSelect := widget.NewSelect([]string{"ALL", "DEBUG", "INFO", "WARN", "ERROR"}, func(string) {
		if logList != nil {
			logList.Refresh()
		}
	})
	levelSelect.SetSelected("ALL")

	current := func() []logging.Entry {
		var recorded []statepkg.ErrorLogEntry
		if structuredErrorsToggle.Checked {
			rt.mu.RLock()
			recorded = append(recorded, rt.state.ErrorLog...)
			rt.mu.RUnlock()
		}
		return filteredLogs(rt.logs, recorded, searchEntry.Text, levelSelect.Selected, errorOnlyToggle.Checked, structuredErrorsToggle.Checked)
	}

	logList = widget.NewList(
		func() int { return len(current()) },
		func() fyne.CanvasObject { return widget.NewLabel("") },
		func(i widget.ListItemID, o fyne.CanvasObject) {
			entries := current()
			if i < len(entries) {
				o.(*widget.Label).SetText(entries[i].Line())
			} else {
				o.(*widget.Label).SetText("")
			}
		},
	)
	searchEntry.OnChanged = func(string) { logList.Refresh() }

	refreshBtn := widget.NewButton("Refresh", func() {
		logList.Refresh()
	})
	clearBtn := widget.NewButton("Clear", func() {
		if rt.logs != nil {
			rt.logs.Clear()
		}
		logList.Refresh()
	})

	controls := container.NewVBox(
		widget.NewLabelWithStyle("Logs", fyne.TextAlignLeading, fyne.TextStyle{Bold: true}),
		widget.NewSeparator(),
		container.NewHBox(searchEntry, levelSelect),
		container.NewHBox(errorOnlyToggle, structuredErrorsToggle),
		container.NewHBox(refreshBtn, clearBtn),
	)

	return container.NewBorder(controls, nil, nil, nil, logList)
}

// filteredLogs applies the Logs view filters. With structuredErrors set the
// persisted error log is shown instead of the ring buffer.
func filteredLogs(ring *logging.RingHandler, recorded []statepkg.ErrorLogEntry, search, levelFilter string, errorsOnly, structuredErrors bool) []logging.Entry {
	search = strings.TrimSpace(strings.ToLower(search))
	levelFilter = strings.ToUpper(strings.TrimSpace(levelFilter))

	var out []logging.Entry
	if structuredErrors {
		for _, se := range recorded {
			out = append(out, logging.Entry{
				Time:    se.Time,
				Level:   slog.LevelError,
				Message: fmt.Sprintf("[%s] %s", se.Source, se.Message),
			})
		}
		return out
	}
	if ring == nil {
		return nil
	}

	for _, e := range ring.Entries() {
		level := strings.ToUpper(e.Level.String())
		if levelFilter != "" && levelFilter != "ALL" && level != levelFilter {
			continue
		}
		if errorsOnly && e.Level < slog.LevelError {
			continue
		}
		if search != "" &&
			!strings.Contains(strings.ToLower(e.Message), search) &&
			!strings.Contains(strings.ToLower(level), search) {
			continue
		}
		out = append(out, e)
	}
	return out
}
