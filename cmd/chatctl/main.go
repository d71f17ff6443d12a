// chatctl 是 Chat Gateway 的终端客户端
package main

import "chat-gateway/cli/cmd"

func main() {
	cmd.Execute()
}
