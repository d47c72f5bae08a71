package orchestrator

import (
	"fmt"
	"math"

	"github.com/MeKo-Tech/leafcheck/internal/remote"
)

const switchSuffix = " Switching to on-device analysis."

var fallbackMessages = map[remote.Reason]string{
	remote.ReasonNetwork: "Network connection failed. The server might be temporarily unavailable.",
	remote.ReasonTimeout: "Request timed out. The server is taking too long to respond.",
	remote.ReasonServer:  "The analysis server returned an error.",
	remote.ReasonFormat:  "The analysis server returned an unexpected response.",
}

func noConnectivityNotice() Notice {
	return Notice{
		Kind:    NoticeOfflineNoConnectivity,
		Message: "No internet connection detected. Analyzing on this device.",
	}
}

func switchingNotice(reason remote.Reason) Notice {
	msg, ok := fallbackMessages[reason]
	if !ok {
		msg = "The analysis server could not be reached."
	}
	return Notice{Kind: NoticeSwitchingOffline, Message: msg + switchSuffix, Reason: reason}
}

func completeNotice(path Path, confidence float64) Notice {
	pct := int(math.Round(confidence * 100))
	if path == PathOnline {
		return Notice{Kind: NoticeCompleteOnline, Message: fmt.Sprintf("Analysis complete with %d%% confidence.", pct)}
	}
	return Notice{Kind: NoticeCompleteOffline, Message: fmt.Sprintf("On-device analysis complete with %d%% confidence.", pct)}
}

func degradedNotice() Notice {
	return Notice{
		Kind:    NoticeDegraded,
		Message: "On-device analysis could not run. Showing a general result with reduced certainty.",
	}
}
