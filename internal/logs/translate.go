package logs

import (
	"sort"
	"strings"
)

// DefaultPhrases maps common server log phrases to their Chinese rendering.
var DefaultPhrases = map[string]string{
	"Starting minecraft server version":    "启动Minecraft服务器版本",
	"Starting minecraft server":            "正在启动Minecraft服务器",
	"Starting Minecraft server on":         "在以下地址启动Minecraft服务器",
	"Starting integrated minecraft server": "启动集成的Minecraft服务器",
	"Loading properties":                   "加载属性",
	"Default game type":                    "默认游戏模式",
	"Generating keypair":                   "生成密钥对",
	"Preparing level":                      "准备世界",
	"Preparing spawn area":                 "准备出生点区域",
	"Preparing start region for dimension": "准备维度的起始区域",
	"Preparing start region":               "准备起始区域",
	"Time elapsed":                         "耗时",
	"Done":                                 "完成",
	"For help":                             "获取帮助请输入",
	"Stopping server":                      "正在停止服务器",
	"Stopping the server":                  "正在停止服务器",
	"Server stopped":                       "服务器已停止",
	"Starting GS4 status listener":         "启动GS4状态监听器",
	"Thread Query Listener":                "查询监听器线程",
	"Query running on":                     "查询运行在",
	"Starting Remote Control listener":     "启动远程控制监听器",
	"Thread RCON Listener":                 "RCON监听器线程",
	"RCON running on":                      "RCON运行在",
	"Loading dimension":                    "加载维度",
	"Loaded":                               "已加载",
	"entities":                             "个实体",
	"chunks":                               "个区块",
	"Saving chunks":                        "保存区块中",
	"Saving players":                       "保存玩家数据",
	"Saving worlds":                        "保存世界",
	"joined the game":                      "加入了游戏",
	"left the game":                        "离开了游戏",
	"Unknown command":                      "未知命令",
	"Invalid command syntax":               "命令语法无效",
	"The game is running in":               "游戏正在运行于",
	"debug mode":                           "调试模式",
	"Checking version":                     "检查版本",
	"Loading libraries":                    "加载库文件",
	"Loading plugins":                      "加载插件",
	"Server permissions file":              "服务器权限文件",
	"Converting map":                       "转换地图",
	"Level seed":                           "世界种子",
	"Server Ping Player Sample Count":      "服务器Ping玩家示例数",
	"Using epoll channel type":             "使用epoll通道类型",
	"Debug logging is enabled":             "已启用调试日志",
	"This server is running":               "此服务器正在运行",
	"Server thread/INFO":                   "服务器线程/信息",
	"Server thread/WARN":                   "服务器线程/警告",
	"Server thread/ERROR":                  "服务器线程/错误",
}

// Translator rewrites known phrases in a log line. Longer phrases win when
// two start at the same position.
type Translator struct {
	replacer *strings.Replacer
}

func NewTranslator(phrases map[string]string) *Translator {
	keys := make([]string, 0, len(phrases))
	for k := range phrases {
		if k != "" {
			keys = append(keys, k)
		}
	}
	sort.Slice(keys, func(i, j int) bool {
		if len(keys[i]) != len(keys[j]) {
			return len(keys[i]) > len(keys[j])
		}
		return keys[i] < keys[j]
	})

	pairs := make([]string, 0, len(keys)*2)
	for _, k := range keys {
		pairs = append(pairs, k, phrases[k])
	}
	return &Translator{replacer: strings.NewReplacer(pairs...)}
}

// Translate is safe on a nil receiver, which leaves lines untouched.
func (t *Translator) Translate(line string) string {
	if t == nil {
		return line
	}
	return t.replacer.Replace(line)
}
