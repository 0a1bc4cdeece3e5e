package mqtt

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/DaniXM02/safegrid/config"
	"github.com/DaniXM02/safegrid/internal/logger"
)

// Client MQTT客户端接口
type Client interface {
	Connect() error
	Disconnect() error
	IsConnected() bool
	Publish(topic string, message interface{}) error
	Subscribe(topic string, handler MessageHandler) error
}

// MessageHandler 消息处理器
type MessageHandler func(topic string, payload []byte)

// mqttClient MQTT客户端实现
type mqttClient struct {
	config           *config.MQTTConfig
	client           mqtt.Client
	connected        bool
	connectedAt      time.Time
	subscribedTopics map[string]MessageHandler
	mu               sync.RWMutex
}

// NewClient 创建MQTT客户端
func NewClient(cfg *config.MQTTConfig) Client {
	return &mqttClient{
		config:           cfg,
		connected:        false,
		subscribedTopics: make(map[string]MessageHandler),
	}
}

// Connect 连接到MQTT服务器
func (c *mqttClient) Connect() error {
	if c.config.Host == "" {
		return fmt.Errorf("MQTT服务器地址未配置")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.connected {
		return nil
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(fmt.Sprintf("tcp://%s:%d", c.config.Host, c.config.Port))
	opts.SetClientID(c.config.ClientID)

	if c.config.Username != "" {
		opts.SetUsername(c.config.Username)
		opts.SetPassword(c.config.Password)
	}

	// 断线后无限重连，退避区间 1s~10s
	opts.SetKeepAlive(30 * time.Second)
	opts.SetPingTimeout(10 * time.Second)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(1 * time.Second)
	opts.SetMaxReconnectInterval(10 * time.Second)

	// 设置Last Will（status 是纯文本协议）
	opts.SetWill(fmt.Sprintf("safegrid/%s/status", c.config.ClientID), "offline", 0, true)

	// 连接回调
	opts.OnConnect = func(client mqtt.Client) {
		logger.Info("MQTT连接成功")
		c.mu.Lock()
		c.connected = true
		c.connectedAt = time.Now()
		topics := make(map[string]MessageHandler, len(c.subscribedTopics))
		for topic, handler := range c.subscribedTopics {
			topics[topic] = handler
		}
		c.mu.Unlock()

		// 发布上线消息
		_ = client.Publish(fmt.Sprintf("safegrid/%s/status", c.config.ClientID), 0, true, "online")

		// 重新订阅之前的主题
		for topic, handler := range topics {
			c.subscribeInternal(client, topic, handler)
		}
	}

	opts.OnConnectionLost = func(client mqtt.Client, err error) {
		logger.Error("MQTT连接丢失: %v", err)
		c.mu.Lock()
		c.connected = false
		c.mu.Unlock()
	}

	// 创建客户端
	client := mqtt.NewClient(opts)

	// 连接（SetConnectRetry 已开，首连失败也会在后台继续重试）
	if token := client.Connect(); token.WaitTimeout(10*time.Second) && token.Error() != nil {
		logger.Warn("MQTT首次连接失败，后台继续重试: %v", token.Error())
	}

	c.client = client
	return nil
}

// Disconnect 断开MQTT连接
func (c *mqttClient) Disconnect() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.client == nil {
		return nil
	}

	// 发布离线消息
	if c.client.IsConnected() {
		c.client.Publish(fmt.Sprintf("safegrid/%s/status", c.config.ClientID), 0, true, "offline")
	}

	c.client.Disconnect(250)
	c.connected = false
	logger.Info("MQTT连接已断开")
	return nil
}

// IsConnected 检查是否已连接
func (c *mqttClient) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.client != nil && c.client.IsConnected()
}

// Publish 发布消息（QoS 0，核心容忍丢失/重复）
func (c *mqttClient) Publish(topic string, message interface{}) error {
	if !c.IsConnected() {
		return fmt.Errorf("MQTT未连接")
	}

	var payload []byte
	var err error

	switch v := message.(type) {
	case string:
		payload = []byte(v)
	case []byte:
		payload = v
	default:
		payload, err = json.Marshal(message)
		if err != nil {
			return fmt.Errorf("序列化消息失败: %v", err)
		}
	}

	token := c.client.Publish(topic, 0, false, payload)
	if !token.WaitTimeout(5 * time.Second) {
		return fmt.Errorf("发布消息超时")
	}
	if token.Error() != nil {
		return fmt.Errorf("发布消息失败: %v", token.Error())
	}
	return nil
}

// Subscribe 订阅主题
func (c *mqttClient) Subscribe(topic string, handler MessageHandler) error {
	c.mu.Lock()
	client := c.client
	c.subscribedTopics[topic] = handler
	c.mu.Unlock()

	if client == nil || !client.IsConnected() {
		// 未连接时只登记，等 OnConnect 统一补订阅
		return nil
	}
	return c.subscribeInternal(client, topic, handler)
}

// subscribeInternal 内部订阅方法
func (c *mqttClient) subscribeInternal(client mqtt.Client, topic string, handler MessageHandler) error {
	token := client.Subscribe(topic, 0, func(client mqtt.Client, msg mqtt.Message) {
		handler(msg.Topic(), msg.Payload())
	})

	if !token.WaitTimeout(5 * time.Second) {
		return fmt.Errorf("订阅主题超时")
	}
	if token.Error() != nil {
		return fmt.Errorf("订阅主题失败: %v", token.Error())
	}

	logger.Info("订阅MQTT主题: %s", topic)
	return nil
}
