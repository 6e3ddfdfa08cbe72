package vulkan

import (
	"fmt"
	"runtime"

	"github.com/go-gl/glfw/v3.3/glfw"
	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/prism/engine/config"
	"github.com/spaghettifunk/prism/engine/core"
)

const validationLayerName = "VK_LAYER_KHRONOS_validation"

type VulkanDevice struct {
	PhysicalDevice     vk.PhysicalDevice
	LogicalDevice      vk.Device
	GraphicsQueueIndex uint32
	GraphicsQueue      vk.Queue

	GraphicsCommandPool vk.CommandPool

	Properties vk.PhysicalDeviceProperties
	Features   vk.PhysicalDeviceFeatures
	Memory     vk.PhysicalDeviceMemoryProperties
}

// VulkanContext is a headless Vulkan setup: an instance, one logical device
// with a graphics queue and a command pool for it. It never creates a
// surface.
type VulkanContext struct {
	Instance  vk.Instance
	Allocator *vk.AllocationCallbacks

	Device *VulkanDevice

	glfw bool
}

// NewVulkanContext loads the Vulkan loader and creates the instance and the
// device.
func NewVulkanContext(cfg config.VulkanConfig) (*VulkanContext, error) {
	context := &VulkanContext{Device: &VulkanDevice{}}

	if err := context.loadLoader(); err != nil {
		return nil, err
	}
	if err := context.createInstance(cfg); err != nil {
		context.Destroy()
		return nil, err
	}
	if err := context.selectPhysicalDevice(); err != nil {
		context.Destroy()
		return nil, err
	}
	if err := context.createLogicalDevice(); err != nil {
		context.Destroy()
		return nil, err
	}
	return context, nil
}

// loadLoader resolves vkGetInstanceProcAddr through glfw and falls back to
// the system loader when glfw cannot initialise, e.g. without a display.
func (vc *VulkanContext) loadLoader() error {
	if err := glfw.Init(); err == nil {
		vc.glfw = true
		if procAddr := glfw.GetVulkanGetInstanceProcAddress(); procAddr != nil {
			vk.SetGetInstanceProcAddr(procAddr)
			return vk.Init()
		}
		core.LogWarn("glfw has no Vulkan loader, using the default one")
	} else {
		core.LogDebug("glfw init failed (%s), using the default Vulkan loader", err)
	}
	if err := vk.SetDefaultGetInstanceProcAddr(); err != nil {
		return fmt.Errorf("failed to load the Vulkan library: %w", err)
	}
	return vk.Init()
}

func (vc *VulkanContext) createInstance(cfg config.VulkanConfig) error {
	appInfo := &vk.ApplicationInfo{
		SType:              vk.StructureTypeApplicationInfo,
		ApiVersion:         uint32(vk.MakeVersion(1, 1, 0)),
		ApplicationVersion: uint32(vk.MakeVersion(1, 0, 0)),
		PApplicationName:   VulkanSafeString(cfg.ApplicationName),
		PEngineName:        VulkanSafeString("Prism"),
	}

	createInfo := vk.InstanceCreateInfo{
		SType:            vk.StructureTypeInstanceCreateInfo,
		PApplicationInfo: appInfo,
	}

	var extensions []string
	if runtime.GOOS == "darwin" {
		extensions = append(extensions, "VK_KHR_portability_enumeration", "VK_KHR_get_physical_device_properties2")
		createInfo.Flags |= 1
	}
	createInfo.EnabledExtensionCount = uint32(len(extensions))
	createInfo.PpEnabledExtensionNames = VulkanSafeStrings(extensions)

	var layers []string
	if cfg.Validation {
		core.LogInfo("Validation layers enabled. Enumerating...")
		if vc.hasLayer(validationLayerName) {
			layers = append(layers, validationLayerName)
		} else {
			core.LogWarn("validation layer %s is not installed, continuing without it", validationLayerName)
		}
	}
	createInfo.EnabledLayerCount = uint32(len(layers))
	createInfo.PpEnabledLayerNames = VulkanSafeStrings(layers)

	if res := vk.CreateInstance(&createInfo, vc.Allocator, &vc.Instance); res != vk.Success {
		return newDeviceError("create instance", res)
	}
	if err := vk.InitInstance(vc.Instance); err != nil {
		core.LogError("%s", err)
		return err
	}
	core.LogInfo("Vulkan Instance created.")
	return nil
}

func (vc *VulkanContext) hasLayer(name string) bool {
	var count uint32
	if res := vk.EnumerateInstanceLayerProperties(&count, nil); res != vk.Success {
		return false
	}
	available := make([]vk.LayerProperties, count)
	if res := vk.EnumerateInstanceLayerProperties(&count, available); res != vk.Success {
		return false
	}
	for i := range available {
		available[i].Deref()
		end := FindFirstZeroInByteArray(available[i].LayerName[:])
		if string(available[i].LayerName[:end]) == name {
			return true
		}
	}
	return false
}

// selectPhysicalDevice picks the first device with a graphics queue.
func (vc *VulkanContext) selectPhysicalDevice() error {
	var count uint32
	if res := vk.EnumeratePhysicalDevices(vc.Instance, &count, nil); res != vk.Success {
		return newDeviceError("enumerate physical devices", res)
	}
	if count == 0 {
		err := fmt.Errorf("no devices which support Vulkan were found")
		core.LogError("%s", err)
		return err
	}
	devices := make([]vk.PhysicalDevice, count)
	if res := vk.EnumeratePhysicalDevices(vc.Instance, &count, devices); res != vk.Success {
		return newDeviceError("enumerate physical devices", res)
	}

	for _, device := range devices {
		var familyCount uint32
		vk.GetPhysicalDeviceQueueFamilyProperties(device, &familyCount, nil)
		families := make([]vk.QueueFamilyProperties, familyCount)
		vk.GetPhysicalDeviceQueueFamilyProperties(device, &familyCount, families)

		for i := range families {
			families[i].Deref()
			if families[i].QueueFlags&vk.QueueFlags(vk.QueueGraphicsBit) == 0 {
				continue
			}
			d := vc.Device
			d.PhysicalDevice = device
			d.GraphicsQueueIndex = uint32(i)
			vk.GetPhysicalDeviceProperties(device, &d.Properties)
			d.Properties.Deref()
			d.Properties.Limits.Deref()
			vk.GetPhysicalDeviceFeatures(device, &d.Features)
			d.Features.Deref()
			vk.GetPhysicalDeviceMemoryProperties(device, &d.Memory)
			d.Memory.Deref()

			end := FindFirstZeroInByteArray(d.Properties.DeviceName[:])
			core.LogInfo("Selected device: '%s'.", string(d.Properties.DeviceName[:end]))
			core.LogInfo(
				"Vulkan API version: %d.%d.%d",
				vk.Version.Major(vk.Version(d.Properties.ApiVersion)),
				vk.Version.Minor(vk.Version(d.Properties.ApiVersion)),
				vk.Version.Patch(vk.Version(d.Properties.ApiVersion)),
			)
			return nil
		}
	}
	err := fmt.Errorf("no device with a graphics queue was found")
	core.LogError("%s", err)
	return err
}

func (vc *VulkanContext) createLogicalDevice() error {
	d := vc.Device
	core.LogInfo("Creating logical device...")

	queueCreateInfo := vk.DeviceQueueCreateInfo{
		SType:            vk.StructureTypeDeviceQueueCreateInfo,
		QueueFamilyIndex: d.GraphicsQueueIndex,
		QueueCount:       1,
		PQueuePriorities: []float32{1.0},
	}

	features := vk.PhysicalDeviceFeatures{}
	if d.Features.SamplerAnisotropy == vk.True {
		features.SamplerAnisotropy = vk.True
	}

	var extensions []string
	if vc.hasDeviceExtension("VK_KHR_portability_subset") {
		core.LogInfo("Adding required extension 'VK_KHR_portability_subset'.")
		extensions = append(extensions, "VK_KHR_portability_subset")
	}

	deviceCreateInfo := vk.DeviceCreateInfo{
		SType:                   vk.StructureTypeDeviceCreateInfo,
		QueueCreateInfoCount:    1,
		PQueueCreateInfos:       []vk.DeviceQueueCreateInfo{queueCreateInfo},
		PEnabledFeatures:        []vk.PhysicalDeviceFeatures{features},
		EnabledExtensionCount:   uint32(len(extensions)),
		PpEnabledExtensionNames: VulkanSafeStrings(extensions),
	}
	if res := vk.CreateDevice(d.PhysicalDevice, &deviceCreateInfo, vc.Allocator, &d.LogicalDevice); res != vk.Success {
		return newDeviceError("create device", res)
	}
	core.LogInfo("Logical device created.")

	vk.GetDeviceQueue(d.LogicalDevice, d.GraphicsQueueIndex, 0, &d.GraphicsQueue)

	poolCreateInfo := vk.CommandPoolCreateInfo{
		SType:            vk.StructureTypeCommandPoolCreateInfo,
		QueueFamilyIndex: d.GraphicsQueueIndex,
		Flags:            vk.CommandPoolCreateFlags(vk.CommandPoolCreateResetCommandBufferBit),
	}
	if res := vk.CreateCommandPool(d.LogicalDevice, &poolCreateInfo, vc.Allocator, &d.GraphicsCommandPool); res != vk.Success {
		return newDeviceError("create command pool", res)
	}
	core.LogInfo("Graphics command pool created.")
	return nil
}

func (vc *VulkanContext) hasDeviceExtension(name string) bool {
	var count uint32
	if res := vk.EnumerateDeviceExtensionProperties(vc.Device.PhysicalDevice, "", &count, nil); res != vk.Success || count == 0 {
		return false
	}
	available := make([]vk.ExtensionProperties, count)
	if res := vk.EnumerateDeviceExtensionProperties(vc.Device.PhysicalDevice, "", &count, available); res != vk.Success {
		return false
	}
	for i := range available {
		available[i].Deref()
		end := FindFirstZeroInByteArray(available[i].ExtensionName[:])
		if string(available[i].ExtensionName[:end]) == name {
			return true
		}
	}
	return false
}

// FindMemoryIndex returns the first memory type allowed by typeFilter that
// has every flag in propertyFlags, or -1.
func (vc *VulkanContext) FindMemoryIndex(typeFilter uint32, propertyFlags vk.MemoryPropertyFlags) int32 {
	memory := vc.Device.Memory
	for i := uint32(0); i < memory.MemoryTypeCount; i++ {
		memory.MemoryTypes[i].Deref()
		if (typeFilter&(1<<i)) != 0 && (memory.MemoryTypes[i].PropertyFlags&propertyFlags) == propertyFlags {
			return int32(i)
		}
	}
	core.LogWarn("Unable to find suitable memory type!")
	return -1
}

// Destroy tears down the command pool, the device and the instance. The
// device must be idle.
func (vc *VulkanContext) Destroy() {
	d := vc.Device
	if d.LogicalDevice != nil {
		if d.GraphicsCommandPool != vk.NullCommandPool {
			core.LogInfo("Destroying command pools...")
			vk.DestroyCommandPool(d.LogicalDevice, d.GraphicsCommandPool, vc.Allocator)
			d.GraphicsCommandPool = vk.NullCommandPool
		}
		core.LogInfo("Destroying logical device...")
		vk.DestroyDevice(d.LogicalDevice, vc.Allocator)
		d.LogicalDevice = nil
	}
	d.GraphicsQueue = nil
	d.PhysicalDevice = nil
	if vc.Instance != nil {
		vk.DestroyInstance(vc.Instance, vc.Allocator)
		vc.Instance = nil
	}
	if vc.glfw {
		glfw.Terminate()
		vc.glfw = false
	}
}
