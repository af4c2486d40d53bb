package notifier

// TextNotifier 是最小的文本推送接口，live 与回测共用。
type TextNotifier interface {
	SendText(text string) error
}
