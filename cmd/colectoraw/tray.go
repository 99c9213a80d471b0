package main

import (
	"github.com/Ed2902/ColectorAW/internal/logger"
	"github.com/Ed2902/ColectorAW/internal/service"

	"github.com/getlantern/systray"
	"go.uber.org/zap"
)

// runTray blocks on the system tray loop until the user quits. Menu actions
// run one at a time in a single worker goroutine so submissions never
// overlap.
func runTray(svc *service.CollectorService, log *logger.Logger) {
	systray.Run(func() {
		systray.SetTitle("ColectorAW")
		systray.SetTooltip("ColectorAW attendance collector")

		sendToday := systray.AddMenuItem("Enviar reporte de hoy", "Send today's report")
		sendYesterday := systray.AddMenuItem("Enviar reporte de ayer", "Send yesterday's report")
		resendPending := systray.AddMenuItem("Reenviar pendientes", "Resend pending submissions")
		systray.AddSeparator()
		quit := systray.AddMenuItem("Salir", "Quit")

		go func() {
			for {
				select {
				case <-sendToday.ClickedCh:
					result, err := svc.SendDailyReport(service.WindowToday, "manual")
					logResult(log, "Today's report", result.Success, result.Message, err)
				case <-sendYesterday.ClickedCh:
					result, err := svc.SendDailyReport(service.WindowYesterday, "manual")
					logResult(log, "Yesterday's report", result.Success, result.Message, err)
				case <-resendPending.ClickedCh:
					results, err := svc.ResendPending()
					if err != nil {
						log.Error("Resend sweep failed", zap.Error(err))
						continue
					}
					log.Info("Resend sweep finished", zap.Int("entries", len(results)))
				case <-quit.ClickedCh:
					systray.Quit()
					return
				}
			}
		}()
	}, func() {
		log.Info("Tray closed")
	})
}

func logResult(log *logger.Logger, what string, success bool, message string, err error) {
	if err != nil {
		log.Error(what+" failed", zap.Error(err))
		return
	}
	log.Info(what+" finished",
		zap.Bool("success", success),
		zap.String("message", message),
	)
}
