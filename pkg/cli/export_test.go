package cli

var RunWithWriter = run

var GetIndexConfig = getIndexConfig
