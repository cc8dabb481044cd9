package core

import glog "github.com/goliatone/go-logger/glog"

var (
	_ SessionStore  = (*MemoryStore)(nil)
	_ JobQueue      = (*MemoryStore)(nil)
	_ ScoreStore    = (*MemoryStore)(nil)
	_ StoreProvider = (*MemoryStore)(nil)

	_ ScoringEngine = ScoringEngineFunc(nil)
	_ EmailSender   = EmailSenderFunc(nil)
	_ AlertingSink  = AlertingSinkFunc(nil)

	_ ConfigProvider  = (*CfgxConfigProvider)(nil)
	_ OptionsResolver = GoOptionsResolver{}
	_ RawConfigLoader = StaticRawConfigLoader{}

	_ Logger         = glog.Nop()
	_ LoggerProvider = glog.ProviderFromLogger(glog.Nop())
)
