package sham

import log "github.com/sirupsen/logrus"

// DefaultLogger 返回一个新的 logrus logger：文本格式，Info 级别。
// 调度器的热路径都打 Debug/Trace，Info 下只有启动、关机和异常。
func DefaultLogger() *log.Logger {
	logger := log.New()
	//logger.SetReportCaller(true)
	logger.SetFormatter(&log.TextFormatter{
		DisableTimestamp: true,
	})
	logger.SetLevel(log.InfoLevel)
	return logger
}
