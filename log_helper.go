package scadabridge

import (
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"
)

func LogLevel(level uint32) {
	log.SetLevel(log.Level(level))
}

func LogInfo(channel string, action string, msg string) {
	t := time.Now()
	log.WithFields(log.Fields{
		"Channel": channel,
		"Action":  action,
		"Time":    t.Format(time.RFC3339),
	}).Info(msg)
}

func LogWarn(channel string, action string, msg string) {
	t := time.Now()
	log.WithFields(log.Fields{
		"Channel": channel,
		"Action":  action,
		"Time":    t.Format(time.RFC3339),
	}).Warn(msg)
}

func LogError(channel string, action string, msg string) {
	t := time.Now()
	log.WithFields(log.Fields{
		"Channel": channel,
		"Action":  action,
		"Time":    t.Format(time.RFC3339),
	}).Error(msg)
}

// LogIfConstraintModeChanged reports transitions of the derived constraint flags.
func LogIfConstraintModeChanged(prev, next CommandValues) {
	if prev.FlagProductionConstraint() != next.FlagProductionConstraint() {
		LogInfo(ChannelFlagProductionConstraint.String(), "ModeChange",
			fmt.Sprintf("production constraint %s (setpoint %v %%)", onOff(next.FlagProductionConstraint()), next.ProductionConstraintSetpoint))
	}
	if prev.FlagGradientConstraint() != next.FlagGradientConstraint() {
		LogInfo(ChannelFlagGradientConstraint.String(), "ModeChange",
			fmt.Sprintf("gradient constraint %s (up %v, down %v %%/min)", onOff(next.FlagGradientConstraint()), next.GradientRampUp, next.GradientRampDown))
	}
}

func onOff(b bool) string {
	if b {
		return PayloadOn
	}
	return PayloadOff
}
